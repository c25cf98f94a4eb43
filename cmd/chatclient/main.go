// Command chatclient talks to a running server over the streaming chat
// socket: it starts a session, sends one text or audio turn and saves the
// spoken reply as a WAV file.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "server host:port")
	token := flag.String("token", os.Getenv("AMI_TOKEN"), "bearer token (defaults to $AMI_TOKEN)")
	text := flag.String("text", "", "text message to send")
	audioPath := flag.String("audio", "", "WAV or raw 16kHz PCM file to send")
	outDir := flag.String("out", "audio_responses", "directory for reply audio")
	nickname := flag.String("nickname", "", "nickname sent with session_start")
	timeout := flag.Duration("timeout", time.Minute, "how long to wait for the reply")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if *token == "" || (*text == "") == (*audioPath == "") {
		fmt.Fprintln(os.Stderr, "usage: chatclient -token TOKEN (-text MESSAGE | -audio FILE)")
		flag.PrintDefaults()
		os.Exit(2)
	}

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/api/v1/chat/ws"}
	headers := http.Header{}
	headers.Add("Authorization", "Bearer "+*token)

	logger.Info("Connecting", zap.String("url", u.String()))
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), headers)
	if err != nil {
		logger.Fatal("Dial failed", zap.Error(err))
	}
	defer conn.Close()

	start := map[string]interface{}{"type": "session_start"}
	if *nickname != "" {
		start["profile"] = map[string]interface{}{"nickname": *nickname}
	}
	if err := conn.WriteJSON(start); err != nil {
		logger.Fatal("Failed to start session", zap.Error(err))
	}

	sentAt := time.Now()
	if *text != "" {
		err = conn.WriteJSON(map[string]string{"type": "text", "text": *text})
	} else {
		var data []byte
		if data, err = os.ReadFile(*audioPath); err == nil {
			logger.Info("Sending audio", zap.String("file", *audioPath), zap.Int("bytes", len(data)))
			err = conn.WriteMessage(websocket.BinaryMessage, data)
		}
	}
	if err != nil {
		logger.Fatal("Failed to send turn", zap.Error(err))
	}

	if err := awaitReply(conn, *outDir, *timeout, logger); err != nil {
		logger.Fatal("No reply", zap.Error(err))
	}
	logger.Info("Turn completed", zap.Duration("elapsed", time.Since(sentAt)))

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// awaitReply reads until the reply arrives, and its audio when announced
func awaitReply(conn *websocket.Conn, outDir string, timeout time.Duration, logger *zap.Logger) error {
	conn.SetReadDeadline(time.Now().Add(timeout))

	var sessionID string
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		if messageType == websocket.BinaryMessage {
			return saveAudio(outDir, sessionID, message, logger)
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("Unreadable message", zap.Error(err))
			continue
		}

		switch msg["type"] {
		case "session_started":
			logger.Info("Session started", zap.Any("session", msg["session"]))
		case "reply":
			sessionID, _ = msg["session_id"].(string)
			logger.Info("Reply", zap.Any("reply", msg["reply"]), zap.Any("historyCount", msg["history_count"]))
			if hasAudio, _ := msg["has_audio"].(bool); !hasAudio {
				return nil
			}
		case "error":
			return fmt.Errorf("%v: %v", msg["error_code"], msg["message"])
		default:
			logger.Debug("Ignoring message", zap.Any("type", msg["type"]))
		}
	}
}

func saveAudio(outDir, sessionID string, wav []byte, logger *zap.Logger) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	name := filepath.Join(outDir, fmt.Sprintf("%s-%d.wav", sessionID, time.Now().Unix()))
	if err := os.WriteFile(name, wav, 0o644); err != nil {
		return err
	}
	logger.Info("Reply audio saved", zap.String("file", name), zap.Int("bytes", len(wav)))
	return nil
}
