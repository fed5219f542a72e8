// Command avrorpc-demo shows how to stand up an Avro RPC protocol and run
// either side of it: a listener that echoes requests back upper-cased, or
// an emitter that dials one and calls it a few times.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/avrorpc/go-avrorpc"
	"github.com/avrorpc/go-avrorpc/internal/protocol"
	"github.com/avrorpc/go-avrorpc/logging"
)

const echoProtocol = `{
	"protocol": "Echo",
	"namespace": "avrorpc.demo",
	"types": [
		{"type": "record", "name": "EchoRequest", "fields": [{"name": "message", "type": "string"}]}
	],
	"messages": {
		"echo": {
			"request": [{"name": "req", "type": "EchoRequest"}],
			"response": "string"
		},
		"notify": {
			"request": [{"name": "req", "type": "EchoRequest"}],
			"one-way": true
		}
	}
}`

func main() {
	var mode string
	var addr string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "avrorpc-demo",
		Short: "Demo application using go-avrorpc",
		Long: `This demo shows how to stand up an Avro RPC protocol and run either
side of it over a plain TCP connection.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logFunc := func(level logging.Level, format string, a ...interface{}) {
				if !verbose {
					return
				}
				log.Printf("%s: %s: %s\n", mode, level, fmt.Sprintf(format, a...))
			}

			p, err := avrorpc.CreateProtocol(echoProtocol, avrorpc.WithLogFunc(logFunc))
			if err != nil {
				return errors.Wrap(err, "create protocol")
			}

			switch mode {
			case "server":
				return runServer(p, addr)
			case "client":
				return runClient(p, addr)
			default:
				return fmt.Errorf("unknown mode %q: must be \"server\" or \"client\"", mode)
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&mode, "mode", "m", "server", `"server" or "client"`)
	flags.StringVarP(&addr, "addr", "a", "127.0.0.1:9091", "address to listen on or dial")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(p *protocol.Protocol, addr string) error {
	p.On("echo", protocol.TwoWay(func(request any, sess protocol.Session, reply protocol.ReplyFunc) {
		message, ok := requestMessage(request)
		if !ok {
			reply(fmt.Errorf("malformed request"), nil)
			return
		}
		reply(nil, strings.ToUpper(message))
	}))
	p.On("notify", protocol.OneWayOnly(func(request any, sess protocol.Session) {
		if message, ok := requestMessage(request); ok {
			log.Printf("server: notify: %s", message)
		}
	}))

	tcpListener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	log.Printf("server: listening on %s", addr)

	go func() {
		for {
			conn, err := tcpListener.Accept()
			if err != nil {
				return
			}
			go func() {
				if _, err := avrorpc.CreateListener(p, conn); err != nil {
					log.Printf("server: handshake: %v", err)
				}
			}()
		}
	}()

	ch := make(chan os.Signal, 32)
	signal.Notify(ch, unix.SIGINT, unix.SIGTERM, unix.SIGQUIT)
	<-ch

	return tcpListener.Close()
}

func runClient(p *protocol.Protocol, addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "dial %s", addr)
	}

	e, err := avrorpc.CreateEmitter(p, conn)
	if err != nil {
		return errors.Wrap(err, "create emitter")
	}
	defer e.Destroy()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := e.Call(ctx, "echo", map[string]any{"req": map[string]any{"message": "hello from avrorpc-demo"}})
	if err != nil {
		return errors.Wrap(err, "call echo")
	}
	log.Printf("client: echo replied: %v", resp)

	if _, err := e.Call(ctx, "notify", map[string]any{"req": map[string]any{"message": "done"}}); err != nil {
		return errors.Wrap(err, "call notify")
	}

	return nil
}

func requestMessage(request any) (string, bool) {
	fields, ok := request.(map[string]any)
	if !ok {
		return "", false
	}
	req, ok := fields["req"].(map[string]any)
	if !ok {
		return "", false
	}
	message, ok := req["message"].(string)
	return message, ok
}
