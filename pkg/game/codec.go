package game

import (
	"encoding/json"
	"fmt"

	"github.com/stratagem-engine/stratagem/pkg/command"
)

// Command record types
const (
	CommandTypeMove      = "move"
	CommandTypeEndTurn   = "end_turn"
	CommandTypeBeginTurn = "begin_turn"
)

// CommandRecord is the serialized form of a recorded command.
type CommandRecord struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeCommand serializes a command into a record.
func EncodeCommand(cmd command.Command) (*CommandRecord, error) {
	var commandType string
	switch cmd.(type) {
	case *MoveCommand:
		commandType = CommandTypeMove
	case *EndTurnCommand:
		commandType = CommandTypeEndTurn
	case *BeginTurnCommand:
		commandType = CommandTypeBeginTurn
	default:
		return nil, fmt.Errorf("unknown command type: %T", cmd)
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %v", err)
	}

	return &CommandRecord{
		Type:    commandType,
		Payload: payload,
	}, nil
}

// DecodeCommand deserializes a record back into a command.
func DecodeCommand(record *CommandRecord) (command.Command, error) {
	var cmd command.Command
	switch record.Type {
	case CommandTypeMove:
		cmd = &MoveCommand{}
	case CommandTypeEndTurn:
		cmd = &EndTurnCommand{}
	case CommandTypeBeginTurn:
		cmd = &BeginTurnCommand{}
	default:
		return nil, fmt.Errorf("unknown command record type: %s", record.Type)
	}

	if err := json.Unmarshal(record.Payload, cmd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s command: %v", record.Type, err)
	}

	return cmd, nil
}

// EncodeHistory serializes a full command history.
func EncodeHistory(history *command.History) ([]CommandRecord, error) {
	commands := history.Commands()
	records := make([]CommandRecord, 0, len(commands))
	for i, cmd := range commands {
		record, err := EncodeCommand(cmd)
		if err != nil {
			return nil, fmt.Errorf("failed to encode command %d: %v", i, err)
		}
		records = append(records, *record)
	}
	return records, nil
}

// DecodeHistory deserializes records back into a command history.
func DecodeHistory(records []CommandRecord) (*command.History, error) {
	history := command.NewHistory()
	for i := range records {
		cmd, err := DecodeCommand(&records[i])
		if err != nil {
			return nil, fmt.Errorf("failed to decode command %d: %v", i, err)
		}
		history.Append(cmd)
	}
	return history, nil
}
