package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joyparty/groupbus"
	"github.com/joyparty/groupbus/logger"
)

type chatMessage struct {
	From string `json:"from"`
	Text string `json:"text"`
}

var (
	name string
	ip   string
	port int
)

func init() {
	flag.StringVar(&name, "name", "anonymous", "nickname")
	flag.StringVar(&ip, "ip", "224.1.2.3", "multicast group ip")
	flag.IntVar(&port, "port", 8001, "multicast group port")
	flag.Parse()

	logger.SetLogger(slog.Default())
}

func main() {
	endpoint, err := groupbus.New[chatMessage](ip, port, "chat-"+name)
	if err != nil {
		panic(err)
	}
	defer endpoint.Close()

	endpoint.Subscribe(func(msg chatMessage, sentAt time.Time) {
		fmt.Printf("[%s] %s: %s\n", sentAt.Format(time.TimeOnly), msg.From, msg.Text)
	})

	fmt.Printf("joined %s as %q, type to chat\n", endpoint.Group(), name)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}

		if err := endpoint.Send(context.Background(), chatMessage{From: name, Text: text}); err != nil {
			logger.Error("send message", "error", err)
		}
	}
}
