// Package sftp delivers content to a remote host over SSH/SFTP.
package sftp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/blobrelay/internal/logging"
	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/aretw0/blobrelay/pkg/ports"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultDialTimeout bounds the TCP connect and SSH handshake.
const DefaultDialTimeout = 30 * time.Second

// Config describes the remote endpoint.
type Config struct {
	Host     string
	Port     int
	Username string

	// BasePath is the remote directory files are written into.
	BasePath string

	// KeySecretName names the private key in the SecretStore.
	KeySecretName string

	// Passphrase decrypts the private key when it is protected.
	Passphrase string

	// KnownHostsFile enables host key verification. When empty any host key is accepted.
	KnownHostsFile string

	DialTimeout time.Duration
}

// Validate checks the required fields.
func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return errors.New("sftp host is required")
	case c.Username == "":
		return errors.New("sftp username is required")
	case c.KeySecretName == "":
		return errors.New("ssh key secret name is required")
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("sftp port %d out of range", c.Port)
	}
	return nil
}

// Deliverer implements ports.Deliverer. Every call opens its own SSH
// connection and closes it before returning.
type Deliverer struct {
	cfg     Config
	secrets ports.SecretStore
	hostKey ssh.HostKeyCallback
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Deliverer.
type Option func(*Deliverer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Deliverer) {
		d.logger = logger
	}
}

// WithHostKeyCallback overrides host key verification.
func WithHostKeyCallback(cb ssh.HostKeyCallback) Option {
	return func(d *Deliverer) {
		d.hostKey = cb
	}
}

// WithClock sets the time source used for receipts.
func WithClock(now func() time.Time) Option {
	return func(d *Deliverer) {
		d.now = now
	}
}

// New creates a Deliverer that reads its private key from secrets.
func New(cfg Config, secrets ports.SecretStore, opts ...Option) (*Deliverer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if secrets == nil {
		return nil, errors.New("secret store is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}

	d := &Deliverer{
		cfg:     cfg,
		secrets: secrets,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.hostKey == nil {
		if cfg.KnownHostsFile != "" {
			cb, err := knownhosts.New(cfg.KnownHostsFile)
			if err != nil {
				return nil, fmt.Errorf("load known hosts: %w", err)
			}
			d.hostKey = cb
		} else {
			d.logger.Warn("SFTP host key verification disabled; set SFTP_KNOWN_HOSTS to enable it", "host", cfg.Host)
			d.hostKey = ssh.InsecureIgnoreHostKey()
		}
	}
	return d, nil
}

// Deliver writes content to BasePath/destinationName, replacing any existing file.
func (d *Deliverer) Deliver(ctx context.Context, destinationName string, content []byte) (domain.DeliveryReceipt, error) {
	remotePath := path.Join(d.cfg.BasePath, destinationName)

	signer, err := d.signer(ctx)
	if err != nil {
		return domain.DeliveryReceipt{}, err
	}

	client, err := d.dial(ctx, signer)
	if err != nil {
		return domain.DeliveryReceipt{}, err
	}
	defer client.Close()

	// Closing the connection unblocks any in-flight read or write.
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	sc, err := sftp.NewClient(client)
	if err != nil {
		return domain.DeliveryReceipt{}, d.transportError(ctx, "open sftp session", err)
	}
	defer sc.Close()

	if err := writeFile(sc, remotePath, content); err != nil {
		return domain.DeliveryReceipt{}, d.writeError(ctx, remotePath, err)
	}

	sum := sha256.Sum256(content)
	receipt := domain.DeliveryReceipt{
		Path:        remotePath,
		Bytes:       int64(len(content)),
		SHA256:      hex.EncodeToString(sum[:]),
		DeliveredAt: d.now().UTC(),
	}
	d.logger.Debug("Delivered file", "path", remotePath, "bytes", receipt.Bytes)
	return receipt, nil
}

func writeFile(sc *sftp.Client, remotePath string, content []byte) error {
	f, err := sc.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	n, err := f.Write(content)
	if err != nil {
		_ = f.Close()
		return err
	}
	if n != len(content) {
		_ = f.Close()
		return io.ErrShortWrite
	}
	return f.Close()
}

func (d *Deliverer) signer(ctx context.Context) (ssh.Signer, error) {
	pemKey, err := d.secrets.Get(ctx, d.cfg.KeySecretName)
	if err != nil {
		if domain.IsCanceled(err) {
			return nil, err
		}
		return nil, domain.NewError(domain.KindCredentialError, fmt.Errorf("retrieve private key: %w", err))
	}

	var signer ssh.Signer
	if d.cfg.Passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(pemKey), []byte(d.cfg.Passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey([]byte(pemKey))
	}
	if err != nil {
		return nil, domain.NewError(domain.KindCredentialError, fmt.Errorf("parse private key: %w", err))
	}
	return signer, nil
}

func (d *Deliverer) dial(ctx context.Context, signer ssh.Signer) (*ssh.Client, error) {
	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))
	config := &ssh.ClientConfig{
		User:            d.cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: d.hostKey,
		Timeout:         d.cfg.DialTimeout,
	}

	dialer := net.Dialer{Timeout: d.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, d.transportError(ctx, "dial "+addr, err)
	}

	_ = conn.SetDeadline(time.Now().Add(d.cfg.DialTimeout))
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	stop()
	if err != nil {
		_ = conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if isAuthError(err) {
			return nil, domain.NewError(domain.KindCredentialError, fmt.Errorf("ssh handshake with %s: %w", addr, err))
		}
		return nil, domain.NewError(domain.KindConnectionError, fmt.Errorf("ssh handshake with %s: %w", addr, err))
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(c, chans, reqs), nil
}

func isAuthError(err error) bool {
	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "knownhosts:")
}

func (d *Deliverer) transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return domain.NewError(domain.KindConnectionError, fmt.Errorf("%s: %w", op, err))
}

// writeError separates a lost connection (worth retrying) from a remote
// refusal such as permissions, quota or a missing directory.
func (d *Deliverer) writeError(ctx context.Context, remotePath string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	wrapped := fmt.Errorf("write %s: %w", remotePath, err)

	var status *sftp.StatusError
	if errors.As(err, &status) {
		switch status.FxCode() {
		case sftp.ErrSSHFxConnectionLost, sftp.ErrSSHFxNoConnection:
			return domain.NewError(domain.KindConnectionError, wrapped)
		}
		return domain.NewError(domain.KindRemoteWriteError, wrapped)
	}

	var netErr net.Error
	switch {
	case errors.Is(err, os.ErrPermission), errors.Is(err, os.ErrNotExist), errors.Is(err, io.ErrShortWrite):
		return domain.NewError(domain.KindRemoteWriteError, wrapped)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed), errors.As(err, &netErr):
		return domain.NewError(domain.KindConnectionError, wrapped)
	}
	return domain.NewError(domain.KindRemoteWriteError, wrapped)
}
