package words

var defaultEnglish = List{
	Easy: {
		"apple", "ball", "banana", "bed", "bird", "boat", "book", "bread", "bus", "cake",
		"car", "cat", "chair", "cloud", "cookie", "cow", "cup", "dog", "door", "duck",
		"egg", "eye", "fish", "flower", "frog", "hat", "heart", "house", "ice cream", "key",
		"kite", "lamp", "leaf", "moon", "mouse", "nose", "pizza", "rain", "shoe", "snake",
		"sock", "star", "sun", "table", "tree", "train", "umbrella", "window",
	},
	Medium: {
		"airplane", "anchor", "backpack", "bicycle", "bridge", "butterfly", "camera", "candle",
		"castle", "compass", "crown", "dinosaur", "dragon", "elephant", "envelope", "giraffe",
		"guitar", "hammer", "helicopter", "island", "jellyfish", "ladder", "lighthouse", "magnet",
		"mermaid", "octopus", "parachute", "penguin", "pirate", "rainbow", "robot", "rocket",
		"sandwich", "scissors", "skateboard", "snowman", "spider web", "telescope", "tornado",
		"treasure", "volcano", "waterfall",
	},
	Hard: {
		"archaeologist", "black hole", "camouflage", "déjà vu", "electricity", "evolution",
		"gravity", "hide-and-seek", "hibernation", "jack-o'-lantern", "labyrinth",
		"midnight snack", "nostalgia", "photosynthesis", "procrastinate", "shadow puppet",
		"sleepwalking", "solar eclipse", "time travel", "traffic jam",
	},
}

var defaultProfanity = []string{
	"ass", "asshole", "bastard", "bitch", "bollocks", "crap", "cunt", "damn", "dick",
	"fuck", "fucker", "fucking", "motherfucker", "piss", "prick", "shit", "slut", "twat", "whore",
}
