// Command placectl is a small operator tool: it dials a running place
// server's /canvas socket, authenticates, and runs one admin console
// command, printing whatever the server replies with.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type request struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func main() {
	root := &cobra.Command{
		Use:   "placectl <command> [args...]",
		Short: "run one admin console command against a place server",
		Args:  cobra.MinimumNArgs(1),
		RunE:  run,
	}

	root.Flags().String("addr", "ws://localhost:8000/canvas", "websocket address of the /canvas endpoint")
	root.Flags().String("login", "", "admin login name")
	root.Flags().String("password", "", "admin password")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	login, _ := cmd.Flags().GetString("login")
	password, _ := cmd.Flags().GetString("password")
	command := strings.Join(args, " ")

	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	// Drain the initial full-update frame every connection receives on join.
	if _, _, err := conn.ReadMessage(); err != nil {
		return fmt.Errorf("read full-update: %w", err)
	}

	if login != "" {
		if err := sendJSON(conn, request{Type: "auth", Data: map[string]string{"login": login, "password": password}}); err != nil {
			return err
		}
		reply, err := readEnvelope(conn)
		if err != nil {
			return err
		}
		var ok *bool
		if err := json.Unmarshal(reply.Data, &ok); err != nil {
			return fmt.Errorf("decode auth reply: %w", err)
		}
		if ok == nil {
			return fmt.Errorf("auth rate-limited, try again in a few seconds")
		}
		if !*ok {
			return fmt.Errorf("authentication failed")
		}
	}

	if err := sendJSON(conn, request{Type: "console", Data: command}); err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply, err := readEnvelope(conn)
	if err != nil {
		return fmt.Errorf("read console reply: %w", err)
	}
	switch reply.Type {
	case "console":
		var line string
		if err := json.Unmarshal(reply.Data, &line); err != nil {
			return fmt.Errorf("decode console reply: %w", err)
		}
		fmt.Println(line)
	case "error":
		var errFrame struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(reply.Data, &errFrame); err != nil {
			return fmt.Errorf("decode error reply: %w", err)
		}
		return fmt.Errorf("%s: %s", errFrame.Code, errFrame.Message)
	default:
		return fmt.Errorf("unexpected reply type %q", reply.Type)
	}
	return nil
}

func sendJSON(conn *websocket.Conn, req request) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func readEnvelope(conn *websocket.Conn) (envelope, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return envelope{}, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("decode reply: %w", err)
	}
	return env, nil
}
