// Package mailbox validates the inbound mailbox an agency imports email from
// and seals its password at rest.
package mailbox

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"rentdesk/internal/models"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	DefaultFolder       = "INBOX"
	DefaultPollInterval = 15
	MinPollInterval     = 5
	MaxPollInterval     = 24 * 60

	keyContext = "rentdesk 2026 mailbox credentials"
)

var (
	ErrInvalidSettings = errors.New("invalid mailbox settings")
	ErrNoSecret        = errors.New("mailbox secret is not configured")
	ErrSealed          = errors.New("sealed mailbox password is unreadable")
)

// Normalize trims the settings, fills defaults and validates them.
// hasPassword reports whether a password is stored or being set; an enabled
// mailbox needs one.
func Normalize(s models.MailboxSettings, hasPassword bool) (models.MailboxSettings, error) {
	s.Protocol = strings.ToLower(strings.TrimSpace(s.Protocol))
	s.Host = strings.TrimSpace(s.Host)
	s.Username = strings.TrimSpace(s.Username)
	s.Folder = strings.TrimSpace(s.Folder)
	s.ImportAs = strings.TrimSpace(s.ImportAs)

	switch s.Protocol {
	case models.MailboxIMAP, models.MailboxPOP3:
	default:
		return models.MailboxSettings{}, fmt.Errorf("%w: protocol must be imap or pop3", ErrInvalidSettings)
	}
	if s.Host == "" || strings.ContainsAny(s.Host, " /@") {
		return models.MailboxSettings{}, fmt.Errorf("%w: host must be a bare hostname", ErrInvalidSettings)
	}
	if s.Username == "" {
		return models.MailboxSettings{}, fmt.Errorf("%w: username is required", ErrInvalidSettings)
	}
	if s.Port == 0 {
		s.Port = defaultPort(s.Protocol, s.UseTLS)
	}
	if s.Port < 1 || s.Port > 65535 {
		return models.MailboxSettings{}, fmt.Errorf("%w: port must be between 1 and 65535", ErrInvalidSettings)
	}
	if s.Folder == "" {
		s.Folder = DefaultFolder
	}
	if s.Protocol == models.MailboxPOP3 && s.Folder != DefaultFolder {
		return models.MailboxSettings{}, fmt.Errorf("%w: pop3 only reads %s", ErrInvalidSettings, DefaultFolder)
	}
	switch s.ImportAs {
	case "":
		s.ImportAs = models.ImportAsLead
	case models.ImportAsLead, models.ImportAsTicket:
	default:
		return models.MailboxSettings{}, fmt.Errorf("%w: import_as must be lead or ticket", ErrInvalidSettings)
	}
	if s.PollIntervalMinutes == 0 {
		s.PollIntervalMinutes = DefaultPollInterval
	}
	if s.PollIntervalMinutes < MinPollInterval || s.PollIntervalMinutes > MaxPollInterval {
		return models.MailboxSettings{}, fmt.Errorf("%w: poll_interval_minutes must be between %d and %d", ErrInvalidSettings, MinPollInterval, MaxPollInterval)
	}
	if s.Enabled && !hasPassword {
		return models.MailboxSettings{}, fmt.Errorf("%w: an enabled mailbox needs a password", ErrInvalidSettings)
	}
	s.PasswordSet = hasPassword
	return s, nil
}

func defaultPort(protocol string, tls bool) int {
	switch {
	case protocol == models.MailboxIMAP && tls:
		return 993
	case protocol == models.MailboxIMAP:
		return 143
	case tls:
		return 995
	default:
		return 110
	}
}

// Sealer encrypts mailbox passwords with a key derived from the operator
// secret.
type Sealer struct {
	key [32]byte
}

func NewSealer(secret string) (*Sealer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrNoSecret
	}
	s := &Sealer{}
	blake3.DeriveKey(keyContext, []byte(secret), s.key[:])
	return s, nil
}

// Seal returns nonce || box.
func (s *Sealer) Seal(password string) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], []byte(password), &nonce, &s.key), nil
}

func (s *Sealer) Open(sealed []byte) (string, error) {
	if len(sealed) < 24+secretbox.Overhead {
		return "", ErrSealed
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &s.key)
	if !ok {
		return "", ErrSealed
	}
	return string(plain), nil
}
