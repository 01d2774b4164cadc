// Package session persists client-side session pointers and chat threads between runs.
package session

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agenticgokit/crewview/internal/utils"
)

// Version is the only on-disk layout this package understands
const Version = 1

// Message is one chat turn
type Message struct {
	Role      string `toml:"role"`
	Content   string `toml:"content"`
	Timestamp int64  `toml:"timestamp"`
}

// Thread is the history of one chat conversation
type Thread struct {
	CrewID    string    `toml:"crew_id"`
	Title     string    `toml:"title,omitempty"`
	UpdatedAt int64     `toml:"updated_at"`
	Messages  []Message `toml:"messages"`
}

// State is the persisted client state
type State struct {
	Version int    `toml:"version"`
	ID      string `toml:"session_id"`
	ChatID  string `toml:"crewai_chat_id,omitempty"`
	CrewID  string `toml:"crewai_crew_id,omitempty"`
	// Threads are keyed by chat id
	Threads map[string]*Thread `toml:"threads,omitempty"`
}

// New returns an empty state with a fresh session id
func New() *State {
	return &State{
		Version: Version,
		ID:      uuid.NewString(),
		Threads: make(map[string]*Thread),
	}
}

// Chat returns the chat id to use for crewID, starting a new chat when the crew changes
func (s *State) Chat(crewID string) string {
	if s.ChatID == "" || s.CrewID != crewID {
		s.ChatID = uuid.NewString()
		s.CrewID = crewID
	}
	return s.ChatID
}

// NewChat forgets the current chat and starts another for crewID
func (s *State) NewChat(crewID string) string {
	s.ChatID = ""
	return s.Chat(crewID)
}

// Append records a chat turn on the thread for chatID
func (s *State) Append(chatID, crewID, role, content string, now time.Time) {
	if s.Threads == nil {
		s.Threads = make(map[string]*Thread)
	}
	t, ok := s.Threads[chatID]
	if !ok {
		t = &Thread{CrewID: crewID}
		s.Threads[chatID] = t
	}
	if t.Title == "" && role == "user" {
		t.Title = title(content)
	}
	t.UpdatedAt = now.UnixMilli()
	t.Messages = append(t.Messages, Message{Role: role, Content: content, Timestamp: t.UpdatedAt})
}

// Thread returns the history for chatID
func (s *State) Thread(chatID string) *Thread {
	return s.Threads[chatID]
}

func title(content string) string {
	r := []rune(content)
	if len(r) > 40 {
		return string(r[:40]) + "..."
	}
	return content
}

// Store reads and writes the state file
type Store struct {
	path   string
	logger *zerolog.Logger
}

// NewStore creates a store for the TOML file at path
func NewStore(path string, logger *zerolog.Logger) *Store {
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// Load reads the state file. A missing file or an unknown version yields a fresh state.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var st State
	if _, err := toml.Decode(string(data), &st); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("discarding unreadable session file")
		return New(), nil
	}
	if st.Version != Version {
		s.logger.Warn().Int("version", st.Version).Str("path", s.path).Msg("discarding session file with unknown version")
		return New(), nil
	}
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.Threads == nil {
		st.Threads = make(map[string]*Thread)
	}
	return &st, nil
}

// Save writes the state file
func (s *Store) Save(st *State) error {
	st.Version = Version

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(st); err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := utils.WriteFile(s.path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	s.logger.Debug().Str("path", s.path).Msg("session saved")
	return nil
}
