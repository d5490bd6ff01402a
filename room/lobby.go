package room

import (
	"github.com/wfunc/doodleserver/apperr"
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/network"
	"github.com/wfunc/doodleserver/state"
)

// 无法开局的原因
const (
	ReasonNotHost          = "not_host"
	ReasonNotEnoughPlayers = "not_enough_players"
	ReasonGameInProgress   = "game_in_progress"
)

// SetReady toggles the ready flag. In a public room the game starts by
// itself once every connected player is ready.
func (r *Room) SetReady(playerID string, ready bool) error {
	return r.doActivity("ready", func() error {
		p := r.Member(playerID)
		if p == nil {
			return apperr.New(apperr.NotInRoom)
		}
		if !r.inLobby() {
			return apperr.New(apperr.GameInProgress)
		}
		p.Ready = ready
		r.Broadcast(network.MustMessage(network.EventPlayerReadyChanged, network.ReadyChangedPayload{
			PlayerID: playerID,
			Ready:    ready,
		}))
		if ready {
			r.Broadcast(network.MustMessage(network.EventLobbyMessage, r.systemLine("%s is ready", p.DisplayName)))
		} else {
			r.Broadcast(network.MustMessage(network.EventLobbyMessage, r.systemLine("%s is not ready", p.DisplayName)))
		}

		if r.Visibility == models.Public && r.allReady() {
			if ok, _ := r.canStart(""); ok {
				return r.start()
			}
		}
		return nil
	})
}

func (r *Room) allReady() bool {
	n := 0
	for _, p := range r.members {
		if !p.Connected() {
			continue
		}
		if !p.Ready {
			return false
		}
		n++
	}
	return n >= MinPlayers
}

// UpdateSettings 只有房主在等待阶段可以修改
func (r *Room) UpdateSettings(playerID string, patch models.SettingsPatch) error {
	return r.doActivity("settings", func() error {
		if r.Member(playerID) == nil {
			return apperr.New(apperr.NotInRoom)
		}
		if r.Visibility == models.Public || playerID != r.hostID {
			return apperr.New(apperr.NotHost)
		}
		if !r.inLobby() {
			return apperr.New(apperr.GameInProgress)
		}
		next, err := ValidateSettings(patch.Apply(r.settings), r.deps.Words)
		if err != nil {
			return err
		}
		if next.MaxPlayers < len(r.members) {
			return apperr.Newf(apperr.InvalidSettings, "maxPlayers below current player count %d", len(r.members))
		}
		r.settings = next
		r.syncMirror()
		r.Broadcast(network.MustMessage(network.EventRoomSettingsUpdated, r.settings))
		return nil
	})
}

// CanStartGame reports whether requesterID may start the game now.
func (r *Room) CanStartGame(requesterID string) (bool, string, error) {
	var (
		ok     bool
		reason string
	)
	err := r.do("can_start", func() error {
		ok, reason = r.canStart(requesterID)
		return nil
	})
	return ok, reason, err
}

func (r *Room) canStart(requesterID string) (bool, string) {
	if r.Visibility == models.Private && requesterID != r.hostID {
		return false, ReasonNotHost
	}
	if !r.inLobby() {
		return false, ReasonGameInProgress
	}
	eligible := 0
	for _, p := range r.members {
		if p.Connected() && (p.Ready || p.ID == requesterID) {
			eligible++
		}
	}
	if eligible < MinPlayers {
		return false, ReasonNotEnoughPlayers
	}
	return true, ""
}

// StartGame 开局请求；失败时房间状态不变
func (r *Room) StartGame(playerID string) error {
	return r.doActivity("start", func() error {
		if r.Member(playerID) == nil {
			return apperr.New(apperr.NotInRoom)
		}
		ok, reason := r.canStart(playerID)
		if !ok {
			switch reason {
			case ReasonNotHost:
				return apperr.New(apperr.NotHost)
			case ReasonGameInProgress:
				return apperr.New(apperr.GameInProgress)
			}
			return apperr.New(apperr.CannotStart, reason)
		}
		return r.start()
	})
}

func (r *Room) start() error {
	return r.engine.Start()
}

// inLobby 只有回到等待阶段才能准备、改设置或开局；赛后停留期间仍算对局中
func (r *Room) inLobby() bool {
	return r.engine.Phase() == state.PhaseWaiting
}

// SelectWord 画手从候选词中选词
func (r *Room) SelectWord(playerID, word string) error {
	return r.doActivity("select_word", func() error {
		if r.Member(playerID) == nil {
			return apperr.New(apperr.NotInRoom)
		}
		return r.engine.SelectWord(playerID, word)
	})
}
