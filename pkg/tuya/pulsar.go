package tuya

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Jeffail/gabs"
	"github.com/gorilla/websocket"
)

// Message queue environments.
const (
	EnvProd = "event"
	EnvTest = "event-test"
)

// Pulsar consumes the Tuya message queue over its websocket gateway and hands
// every decrypted device report to the registered listeners.
type Pulsar struct {
	endpoint  string
	accessID  string
	accessKey string
	env       string
	dialer    *websocket.Dialer

	ReconnectDelay time.Duration
	PingInterval   time.Duration

	mu        sync.Mutex
	listeners []func([]byte)
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewPulsar creates a consumer for endpoint such as wss://mqe.tuyaeu.com:8285/.
func NewPulsar(endpoint, accessID, accessKey, env string) *Pulsar {
	if env == "" {
		env = EnvProd
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	return &Pulsar{
		endpoint:       endpoint,
		accessID:       accessID,
		accessKey:      accessKey,
		env:            env,
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		ReconnectDelay: 5 * time.Second,
		PingInterval:   30 * time.Second,
	}
}

// AddMessageListener registers fn for every decrypted message. Listeners run
// on the consumer goroutine.
func (p *Pulsar) AddMessageListener(fn func([]byte)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// TopicURL is the websocket consumer URL of the subscription.
func (p *Pulsar) TopicURL() string {
	return fmt.Sprintf("%sws/v2/consumer/persistent/%s/out/%s/%s-sub?ackTimeoutMillis=3000&subscriptionType=Failover",
		p.endpoint, p.accessID, p.env, p.accessID)
}

// Start connects in the background and keeps reconnecting until Stop or ctx
// cancellation.
func (p *Pulsar) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
}

// Stop disconnects and waits for the consumer goroutine to exit.
func (p *Pulsar) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Pulsar) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		err := p.session(ctx)
		if ctx.Err() != nil {
			lg.Infof("Message queue consumer stopped")
			return
		}
		lg.Warningf("Message queue connection lost: %v, reconnecting in %v", err, p.ReconnectDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.ReconnectDelay):
		}
	}
}

func (p *Pulsar) session(ctx context.Context) error {
	header := http.Header{}
	header.Set("username", p.accessID)
	header.Set("password", Password(p.accessID, p.accessKey))

	conn, _, err := p.dialer.DialContext(ctx, p.TopicURL(), header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	lg.Infof("Message queue connected, env %s", p.env)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(p.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				// unblocks ReadMessage
				conn.Close()
				return
			case <-stop:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					lg.Warningf("Message queue ping failed: %v", err)
				}
			}
		}
	}()

	ack := func(id string) error {
		return conn.WriteJSON(map[string]string{"messageId": id})
	}
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		payload, err := p.handleFrame(raw, ack)
		if err != nil {
			lg.Errorf("Dropping message queue frame: %v", err)
			continue
		}
		p.dispatch(payload)
	}
}

// handleFrame acks a consumer frame and returns its decrypted message.
func (p *Pulsar) handleFrame(raw []byte, ack func(id string) error) ([]byte, error) {
	frame, err := gabs.ParseJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	id, _ := frame.Path("messageId").Data().(string)
	if id == "" {
		return nil, errors.New("frame without messageId")
	}
	// ack first so a message that fails to decrypt is not redelivered forever
	if err := ack(id); err != nil {
		return nil, fmt.Errorf("ack %s: %w", id, err)
	}

	encoded, _ := frame.Path("payload").Data().(string)
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode payload of %s: %w", id, err)
	}
	envelope, err := gabs.ParseJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("parse payload of %s: %w", id, err)
	}
	data, _ := envelope.Path("data").Data().(string)
	if data == "" {
		return nil, fmt.Errorf("payload of %s has no data", id)
	}
	plain, err := DecryptAES(data, p.accessKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s: %w", id, err)
	}
	lg.Debugf("Received message %s: %s", id, plain)
	return plain, nil
}

func (p *Pulsar) dispatch(msg []byte) {
	p.mu.Lock()
	listeners := append([]func([]byte){}, p.listeners...)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(msg)
	}
}

// Password derives the message queue password from the cloud credentials.
func Password(accessID, accessKey string) string {
	inner := md5.Sum([]byte(accessKey))
	outer := md5.Sum([]byte(accessID + hex.EncodeToString(inner[:])))
	return hex.EncodeToString(outer[:])[8:24]
}

// DecryptAES decodes base64 data and decrypts it with AES-128-ECB keyed by
// accessKey[8:24]. Trailing padding and control bytes are stripped.
func DecryptAES(data, accessKey string) ([]byte, error) {
	if len(accessKey) < 24 {
		return nil, errors.New("access key too short")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	block, err := aes.NewCipher([]byte(accessKey[8:24]))
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}
	plain := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		block.Decrypt(plain[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
	}
	return bytes.TrimRightFunc(plain, func(r rune) bool { return r < 0x20 }), nil
}
