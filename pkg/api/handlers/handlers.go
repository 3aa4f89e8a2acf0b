package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/stratagem-engine/stratagem/pkg/log"
	"github.com/stratagem-engine/stratagem/pkg/replay"
	"github.com/stratagem-engine/stratagem/pkg/repositories"
	"github.com/stratagem-engine/stratagem/pkg/session"
)

type StatusResponse struct {
	SessionState string         `json:"sessionState"`
	Outstanding  int            `json:"outstanding"`
	Session      *SessionStatus `json:"session,omitempty"`
	Replay       *ReplayStatus  `json:"replay,omitempty"`
}

type SessionStatus struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Generation uint64    `json:"generation"`
	CreatedAt  time.Time `json:"createdAt"`
	Turn       int       `json:"turn"`
	Faction    int       `json:"faction"`
	Commands   int       `json:"commands"`
}

type ReplayStatus struct {
	CurrentState   string `json:"currentState"`
	RequestedState string `json:"requestedState"`
	CommandIndex   int    `json:"commandIndex"`
	ComputerTurn   bool   `json:"computerTurn"`
}

func HandleStatus(runtime *session.Runtime, engine *replay.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			SessionState: runtime.Machine().State().String(),
			Outstanding:  runtime.Runner().Count(),
		}

		if s := runtime.Current(); s != nil {
			world := s.World()
			resp.Session = &SessionStatus{
				ID:         s.ID.String(),
				Name:       s.Name,
				Generation: s.Generation,
				CreatedAt:  s.CreatedAt,
				Turn:       world.Turn(),
				Faction:    world.ActiveFaction(),
				Commands:   s.History().Len(),
			}
		}

		if engine != nil && engine.Active() {
			resp.Replay = &ReplayStatus{
				CurrentState:   engine.CurrentState().String(),
				RequestedState: engine.RequestedState().String(),
				CommandIndex:   engine.CommandIndex(),
				ComputerTurn:   engine.IsComputerTurn(),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error("failed to encode status: %v", err)
			http.Error(w, "Failed to encode status", http.StatusInternalServerError)
			return
		}
	}
}

type SaveResponse struct {
	SessionID string    `json:"sessionID"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	SavedAt   time.Time `json:"savedAt"`
}

func HandleListSaves(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries, err := repository.ListSaves(r.Context())
		if err != nil {
			log.Error("failed to list saves: %v", err)
			http.Error(w, "Failed to list saves", http.StatusInternalServerError)
			return
		}

		saves := make([]SaveResponse, 0, len(summaries))
		for _, summary := range summaries {
			saves = append(saves, SaveResponse{
				SessionID: summary.SessionID.String(),
				Name:      summary.Name,
				CreatedAt: summary.CreatedAt,
				SavedAt:   summary.SavedAt,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(saves); err != nil {
			log.Error("failed to encode saves: %v", err)
			http.Error(w, "Failed to encode saves", http.StatusInternalServerError)
			return
		}
	}
}
