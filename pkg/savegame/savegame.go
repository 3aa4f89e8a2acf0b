package savegame

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/stratagem-engine/stratagem/pkg/game"
	"github.com/stratagem-engine/stratagem/pkg/session"
)

// Snapshot is the serialized form of a session: the live world, the
// initial world replay starts from, the faction assignments, and the full
// command history.
type Snapshot struct {
	SessionID   uuid.UUID            `json:"sessionID"`
	Name        string               `json:"name"`
	CreatedAt   time.Time            `json:"createdAt"`
	SavedAt     time.Time            `json:"savedAt"`
	World       *game.World          `json:"world"`
	Initial     *game.World          `json:"initial"`
	Controllers []session.Controller `json:"controllers"`
	Commands    []game.CommandRecord `json:"commands"`
}

// FromSession captures a snapshot of the session. The world must be a
// game.World; persisting other world implementations is not supported.
func FromSession(s *session.Session) (*Snapshot, error) {
	world, ok := s.World().(*game.World)
	if !ok {
		return nil, fmt.Errorf("world type %T is not persistable", s.World())
	}
	initial, ok := s.InitialWorld().(*game.World)
	if !ok {
		return nil, fmt.Errorf("initial world type %T is not persistable", s.InitialWorld())
	}

	commands, err := game.EncodeHistory(s.History())
	if err != nil {
		return nil, fmt.Errorf("failed to encode history: %v", err)
	}

	return &Snapshot{
		SessionID:   s.ID,
		Name:        s.Name,
		CreatedAt:   s.CreatedAt,
		SavedAt:     time.Now().UTC(),
		World:       world.Clone(),
		Initial:     initial.Clone(),
		Controllers: s.Controllers(),
		Commands:    commands,
	}, nil
}

// OpenOptions converts the snapshot back into options for opening a
// session. The reopened session gets a fresh generation.
func (sn *Snapshot) OpenOptions() (session.OpenSessionOptions, error) {
	history, err := game.DecodeHistory(sn.Commands)
	if err != nil {
		return session.OpenSessionOptions{}, fmt.Errorf("failed to decode history: %v", err)
	}
	return session.OpenSessionOptions{
		Name:        sn.Name,
		World:       sn.World.Clone(),
		History:     history,
		Initial:     sn.Initial.Clone(),
		Controllers: sn.Controllers,
	}, nil
}

// Encode serializes and compresses a snapshot.
func Encode(sn *Snapshot) ([]byte, error) {
	b, err := json.Marshal(sn)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %v", err)
	}

	compressed := bytes.NewBuffer(nil)
	compWriter, err := zstd.NewWriter(compressed, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %v", err)
	}
	if _, err := compWriter.Write(b); err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %v", err)
	}
	if err := compWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zstd writer: %v", err)
	}

	return compressed.Bytes(), nil
}

// Decode decompresses and deserializes a snapshot.
func Decode(data []byte) (*Snapshot, error) {
	compReader, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %v", err)
	}
	defer compReader.Close()

	b, err := io.ReadAll(compReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read decompressed snapshot: %v", err)
	}

	sn := &Snapshot{}
	if err := json.Unmarshal(b, sn); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %v", err)
	}

	return sn, nil
}

// WriteFile saves an encoded snapshot to path.
func WriteFile(path string, sn *Snapshot) error {
	data, err := Encode(sn)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write save file: %v", err)
	}
	return nil
}

// ReadFile loads a snapshot from path.
func ReadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read save file: %v", err)
	}
	return Decode(data)
}
