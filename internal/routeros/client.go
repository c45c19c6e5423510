package routeros

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"github.com/apsdehal/go-logger"
)

// Config holds the access device endpoint and credentials.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// Client speaks the device's line protocol. Each call opens a fresh
// connection, authenticates, runs one exchange, and closes; there is no
// session pooling and no transport retry; retry policy belongs to callers.
type Client struct {
	cfg Config
	log *logger.Logger

	// dialFunc is swappable in tests.
	dialFunc func(ctx context.Context) (net.Conn, error)
}

// NewClient returns a Client for the configured device.
func NewClient(cfg Config, log *logger.Logger) *Client {
	c := &Client{cfg: cfg, log: log}
	c.dialFunc = func(ctx context.Context) (net.Conn, error) {
		d := net.Dialer{Timeout: cfg.Timeout}
		return d.DialContext(ctx, "tcp", net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)))
	}
	return c
}

type session struct {
	conn    net.Conn
	reader  *sentenceReader
	timeout time.Duration
}

func (c *Client) open(ctx context.Context) (*session, error) {
	conn, err := c.dialFunc(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s:%d: %v", ErrTransport, c.cfg.Host, c.cfg.Port, err)
	}

	s := &session{
		conn:    conn,
		reader:  newSentenceReader(conn),
		timeout: c.cfg.Timeout,
	}
	s.setDeadline(ctx)

	if err := c.login(s); err != nil {
		s.close()
		return nil, err
	}
	c.log.DebugF("authenticated to device %s:%d", c.cfg.Host, c.cfg.Port)
	return s, nil
}

// login runs the handshake: read the greeting, send credentials, and answer
// a challenge if the device issues one.
func (c *Client) login(s *session) error {
	greeting, err := s.reader.readReply()
	if err != nil {
		return err
	}
	if greeting.Trap != nil {
		return fmt.Errorf("%w: greeting carried a trap", ErrAuth)
	}

	loginWords := []Word{
		{Key: "name", Value: c.cfg.Username},
		{Key: "password", Value: c.cfg.Password},
	}
	if err := writeCommand(s.conn, "/login", loginWords); err != nil {
		return err
	}

	reply, err := s.reader.readReply()
	if err != nil {
		return err
	}
	if reply.Trap == nil {
		// plain auth accepted
		return nil
	}

	// challenge-response: the trap carries a hex nonce in ret
	ret, ok := reply.Trap.Attrs["ret"]
	if !ok {
		return fmt.Errorf("%w: login rejected: %s", ErrAuth, reply.Trap.Attrs["message"])
	}
	nonce, err := hex.DecodeString(ret)
	if err != nil {
		return fmt.Errorf("%w: malformed challenge %q", ErrAuth, ret)
	}

	h := md5.New()
	h.Write([]byte{0})
	h.Write([]byte(c.cfg.Password))
	h.Write(nonce)
	response := "00" + hex.EncodeToString(h.Sum(nil))

	challengeWords := []Word{
		{Key: "name", Value: c.cfg.Username},
		{Key: "response", Value: response},
	}
	if err := writeCommand(s.conn, "/login", challengeWords); err != nil {
		return err
	}

	reply, err = s.reader.readReply()
	if err != nil {
		return err
	}
	if reply.Trap != nil {
		return fmt.Errorf("%w: challenge rejected: %s", ErrAuth, reply.Trap.Attrs["message"])
	}
	return nil
}

func (s *session) setDeadline(ctx context.Context) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(s.timeout)
	}
	_ = s.conn.SetDeadline(deadline)
}

// close sends /quit best-effort and closes the stream.
func (s *session) close() {
	_ = writeCommand(s.conn, "/quit", nil)
	_ = s.conn.Close()
}

// Execute connects, authenticates, runs one command, and returns the
// attribute maps of its data records. A trap in the reply is returned as a
// TrapError alongside whatever records arrived before it.
func (c *Client) Execute(ctx context.Context, path string, words []Word) ([]map[string]string, error) {
	s, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer s.close()
	return c.run(ctx, s, path, words)
}

func (c *Client) run(ctx context.Context, s *session, path string, words []Word) ([]map[string]string, error) {
	s.setDeadline(ctx)
	if err := writeCommand(s.conn, path, words); err != nil {
		return nil, err
	}
	reply, err := s.reader.readReply()
	if err != nil {
		return nil, err
	}
	if reply.Trap != nil {
		return reply.Records, &TrapError{Message: reply.Trap.Attrs["message"]}
	}
	return reply.Records, nil
}

// CreateAccount adds a hotspot user on the device. Success requires at least
// one data-bearing sentence or an explicit identifier in the reply; a silent
// reply is reported as ErrAmbiguous because some firmware omits confirmation.
func (c *Client) CreateAccount(ctx context.Context, username, password, profile, comment string) error {
	if comment == "" {
		comment = "Auto-generated via WiFi Voucher System"
	}
	records, err := c.Execute(ctx, "/ip/hotspot/user/add", []Word{
		{Key: "name", Value: username},
		{Key: "password", Value: password},
		{Key: "profile", Value: profile},
		{Key: "comment", Value: comment},
	})
	if err != nil {
		c.log.ErrorF("create account %s failed: %v", username, err)
		return err
	}

	if len(records) > 0 {
		c.log.InfoF("hotspot account created: %s profile=%s", username, profile)
		return nil
	}
	return fmt.Errorf("%w: add user returned no confirmation", ErrAmbiguous)
}

// FindAccount looks up a hotspot user by name. Returns (nil, nil) when the
// device knows no such user.
func (c *Client) FindAccount(ctx context.Context, username string) (map[string]string, error) {
	records, err := c.Execute(ctx, "/ip/hotspot/user/print", []Word{
		{Key: "?name", Value: username},
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// DeleteAccount removes a hotspot user by name. Returns ErrNoSuchAccount if
// the user is absent or carries no device id.
func (c *Client) DeleteAccount(ctx context.Context, username string) error {
	account, err := c.FindAccount(ctx, username)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrNoSuchAccount
	}
	id, ok := account[".id"]
	if !ok {
		return ErrNoSuchAccount
	}

	if _, err := c.Execute(ctx, "/ip/hotspot/user/remove", []Word{{Key: ".id", Value: id}}); err != nil {
		return err
	}
	c.log.InfoF("hotspot account deleted: %s", username)
	return nil
}

// ListProfiles returns the hotspot user profiles configured on the device.
func (c *Client) ListProfiles(ctx context.Context) ([]map[string]string, error) {
	return c.Execute(ctx, "/ip/hotspot/user/profile/print", nil)
}

// SystemIdentity fetches the device name; used as a connectivity probe.
func (c *Client) SystemIdentity(ctx context.Context) (string, error) {
	records, err := c.Execute(ctx, "/system/identity/print", nil)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", fmt.Errorf("%w: identity print returned no record", ErrAmbiguous)
	}
	return records[0]["name"], nil
}
