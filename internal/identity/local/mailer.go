// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/allev1985/topten-sub005/internal/identity"
)

// Message is an outgoing account email. Link carries the plaintext token.
type Message struct {
	To        string             `yaml:"to"`
	Type      identity.TokenType `yaml:"type"`
	Link      string             `yaml:"link"`
	ExpiresAt time.Time          `yaml:"expires_at"`
}

// Mailer delivers account emails.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MemoryMailer records messages in memory.
type MemoryMailer struct {
	mu   sync.Mutex
	sent []Message
}

// NewMemoryMailer creates an empty MemoryMailer.
func NewMemoryMailer() *MemoryMailer {
	return &MemoryMailer{}
}

// Send records msg.
func (m *MemoryMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *MemoryMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// Last returns the most recent message sent to the address.
func (m *MemoryMailer) Last(to string) (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == to {
			return m.sent[i], true
		}
	}
	return Message{}, false
}

// FileMailer writes each message as a YAML file into a directory, for
// development setups without an SMTP relay.
type FileMailer struct {
	dir string
}

// NewFileMailer creates the outbox directory if needed.
func NewFileMailer(dir string) (*FileMailer, error) {
	if dir == "" {
		return nil, oops.Code("MAILER_INVALID_CONFIG").Errorf("outbox directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, oops.Code("MAILER_INIT_FAILED").With("dir", dir).Wrap(err)
	}
	return &FileMailer{dir: dir}, nil
}

// Send writes msg to <dir>/<ulid>-<type>.yaml.
func (m *FileMailer) Send(_ context.Context, msg Message) error {
	data, err := yaml.Marshal(msg)
	if err != nil {
		return oops.Code("MAILER_SEND_FAILED").With("operation", "marshal message").Wrap(err)
	}
	name := filepath.Join(m.dir, fmt.Sprintf("%s-%s.yaml", ulid.Make(), msg.Type))
	if err := os.WriteFile(name, data, 0o600); err != nil {
		return oops.Code("MAILER_SEND_FAILED").With("operation", "write message").With("file", name).Wrap(err)
	}
	return nil
}
