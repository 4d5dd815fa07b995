package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	cli "github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	ws "nhooyr.io/websocket"

	"murmur/companion/internal/health"
	"murmur/companion/internal/voicews"
)

// voice-probe drives a running server end to end: it checks gRPC health,
// creates a conversation, streams raw PCM16LE 16kHz mono audio over the voice
// socket and prints everything the server pushes back.
func main() {
	base := cli.StringP("server", "s", "http://localhost:8080", "Server base URL")
	grpcAddr := cli.StringP("grpc", "g", "localhost:9090", "gRPC health address")
	audio := cli.StringP("audio", "a", "", "Raw PCM16LE 16kHz mono file to stream (silence if empty)")
	mode := cli.StringP("mode", "m", "normal", "Conversation mode")
	timeout := cli.DurationP("timeout", "t", 30*time.Second, "Overall timeout")
	cli.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Printf("=== Voice Probe ===\n")

	// Step 1: gRPC health
	fmt.Println("[1] Checking gRPC health...")
	if err := checkHealth(ctx, *grpcAddr); err != nil {
		fmt.Printf("    health: %v\n", err)
	}

	// Step 2: create conversation
	fmt.Println("[2] Creating conversation...")
	conv, err := createConversation(ctx, *base, *mode)
	if err != nil {
		log.Fatalf("create conversation: %v", err)
	}
	fmt.Printf("    conversation=%s mode=%s\n", conv.ID, conv.Mode)

	// Step 3: open voice socket
	fmt.Println("[3] Opening voice socket...")
	wsURL := "ws" + strings.TrimPrefix(strings.TrimSuffix(*base, "/"), "http") + conv.WSPath
	c, _, err := ws.Dial(ctx, wsURL, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer c.Close(ws.StatusNormalClosure, "probe done")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					fmt.Printf("\n[socket] read error: %v\n", err)
				}
				return
			}
			var m voicews.Message
			if err := json.Unmarshal(data, &m); err != nil {
				fmt.Printf("[socket] bad frame: %v\n", err)
				continue
			}
			printMessage(m)
		}
	}()

	send(ctx, c, voicews.Message{Type: "start"})

	// Step 4: stream audio in 20ms frames
	fmt.Println("[4] Streaming audio...")
	if err := streamAudio(ctx, c, *audio); err != nil {
		fmt.Printf("    stream: %v\n", err)
	}
	if conv.Mode == "dictation" {
		// Dictation never ends a turn on silence.
		send(ctx, c, voicews.Message{Type: "flush"})
	}

	fmt.Println("\n[*] Waiting for utterances... Ctrl+C to exit")
	select {
	case <-done:
		fmt.Println("[*] Socket closed")
	case <-ctx.Done():
		fmt.Println("[*] Done")
	}
}

type conversation struct {
	ID     string `json:"conversation_id"`
	Mode   string `json:"mode"`
	Token  string `json:"token"`
	WSPath string `json:"ws_path"`
}

func createConversation(ctx context.Context, base, mode string) (conversation, error) {
	var conv conversation
	body := strings.NewReader(fmt.Sprintf(`{"mode":%q}`, mode))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(base, "/")+"/conversations", body)
	if err != nil {
		return conv, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return conv, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return conv, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	err = json.NewDecoder(resp.Body).Decode(&conv)
	return conv, err
}

func checkHealth(ctx context.Context, addr string) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(cctx, &healthpb.HealthCheckRequest{Service: health.RecognitionService})
	if err != nil {
		return err
	}
	fmt.Printf("    %s: %s\n", health.RecognitionService, resp.GetStatus())
	return nil
}

func streamAudio(ctx context.Context, c *ws.Conn, path string) error {
	const frame = 640 // 20ms of 16kHz mono PCM16
	var r io.Reader
	if path == "" {
		r = io.LimitReader(zeroReader{}, frame*50*5)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	buf := make([]byte, frame)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if werr := c.Write(ctx, ws.MessageBinary, append([]byte(nil), buf[:n]...)); werr != nil {
				return werr
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func send(ctx context.Context, c *ws.Conn, m voicews.Message) {
	b, _ := json.Marshal(m)
	if err := c.Write(ctx, ws.MessageText, b); err != nil {
		fmt.Printf("[socket] send %s: %v\n", m.Type, err)
	}
}

func printMessage(m voicews.Message) {
	ts := time.Now().Format("15:04:05.000")
	switch m.Type {
	case "utterance":
		fmt.Printf("[%s] <- utterance %s: %q\n", ts, m.ID, m.Text)
	case "status":
		if s := m.Status; s != nil {
			fmt.Printf("[%s] <- status: state=%s listening=%v recording=%v reason=%s mode=%s err=%q\n",
				ts, s.State, s.Listening, s.Recording, s.Reason, s.Mode, s.LastError)
		}
	case "level":
		// too chatty to print
	case "fatal", "error":
		fmt.Printf("[%s] <- %s: %s\n", ts, m.Type, m.Error)
	default:
		fmt.Printf("[%s] <- unknown message: %s\n", ts, m.Type)
	}
}
