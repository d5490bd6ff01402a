package room

import (
	"github.com/wfunc/doodleserver/apperr"
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/words"
)

// 房间设置的取值范围
const (
	MinPlayers   = 2
	MaxPlayers   = 12
	MinRounds    = 1
	MaxRounds    = 10
	MinDrawTime  = 30
	MaxDrawTime  = 240
	MaxHintCount = 5
)

// ValidateSettings checks bounds and sanitizes the custom word list. It
// returns the settings to store; nothing is applied on error.
func ValidateSettings(s models.RoomSettings, bank *words.Bank) (models.RoomSettings, error) {
	switch {
	case s.MaxPlayers < MinPlayers || s.MaxPlayers > MaxPlayers:
		return s, apperr.Newf(apperr.InvalidSettings, "maxPlayers must be between %d and %d", MinPlayers, MaxPlayers)
	case s.Rounds < MinRounds || s.Rounds > MaxRounds:
		return s, apperr.Newf(apperr.InvalidSettings, "rounds must be between %d and %d", MinRounds, MaxRounds)
	case s.DrawTime < MinDrawTime || s.DrawTime > MaxDrawTime:
		return s, apperr.Newf(apperr.InvalidSettings, "drawTime must be between %d and %d seconds", MinDrawTime, MaxDrawTime)
	case s.Hints < 0 || s.Hints > MaxHintCount:
		return s, apperr.Newf(apperr.InvalidSettings, "hints must be between 0 and %d", MaxHintCount)
	}

	if s.Language == "" {
		s.Language = words.DefaultLanguage
	}
	switch s.WordSource {
	case "", models.WordSourceDefault:
		s.WordSource = models.WordSourceDefault
		s.CustomWords = nil
	case models.WordSourceCustom, models.WordSourceMixed:
		clean, err := bank.SanitizeCustomWords(s.CustomWords)
		if err != nil {
			return s, err
		}
		s.CustomWords = clean
	default:
		return s, apperr.Newf(apperr.InvalidSettings, "unknown word source %q", s.WordSource)
	}
	return s, nil
}
