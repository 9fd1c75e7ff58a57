package stdlib

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/storylang/storylang/internal/runtime"
)

// httpClient is shared by the HTTP and LLM modules; its timeout keeps a
// hung server from wedging the evaluator thread indefinitely.
var httpClient = &http.Client{Timeout: 30 * time.Second}

func httpModule() runtime.Dict {
	return module(map[string]runtime.Value{
		"Get": native("HTTP.Get", func(args []runtime.Value) (runtime.Value, error) {
			url, err := textArg(args, 0, "HTTP.Get")
			if err != nil {
				return nil, err
			}
			resp, err := httpClient.Get(url)
			if err != nil {
				return nil, netError("HTTP.Get", err)
			}
			return httpResponse(resp)
		}),
		"Post": native("HTTP.Post", func(args []runtime.Value) (runtime.Value, error) {
			url, err := textArg(args, 0, "HTTP.Post")
			if err != nil {
				return nil, err
			}
			body, err := textArg(args, 1, "HTTP.Post")
			if err != nil {
				return nil, err
			}
			contentType := "application/json"
			if len(args) > 2 {
				if ct, err := textArg(args, 2, "HTTP.Post"); err == nil {
					contentType = ct
				}
			}
			resp, err := httpClient.Post(url, contentType, strings.NewReader(body))
			if err != nil {
				return nil, netError("HTTP.Post", err)
			}
			return httpResponse(resp)
		}),
	})
}

func httpResponse(resp *http.Response) (runtime.Value, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, netError("HTTP", err)
	}
	d := runtime.NewDict()
	d.Set("status", runtime.Decimal{D: intDecimal(resp.StatusCode)})
	d.Set("body", runtime.Text{S: string(data)})
	headers := runtime.NewDict()
	for k := range resp.Header {
		headers.Set(k, runtime.Text{S: resp.Header.Get(k)})
	}
	d.Set("headers", headers)
	return d, nil
}

// websocketModule dials a WebSocket endpoint and exposes the connection
// as a Dict of Send/Receive/Close natives.
func websocketModule() runtime.Dict {
	return module(map[string]runtime.Value{
		"Connect": native("WebSocket.Connect", func(args []runtime.Value) (runtime.Value, error) {
			url, err := textArg(args, 0, "WebSocket.Connect")
			if err != nil {
				return nil, err
			}
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				return nil, netError("WebSocket.Connect", err)
			}
			d := runtime.NewDict()
			d.Set("Send", native("WebSocket.Send", func(args []runtime.Value) (runtime.Value, error) {
				msg, err := textArg(args, 0, "WebSocket.Send")
				if err != nil {
					return nil, err
				}
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					return nil, netError("WebSocket.Send", err)
				}
				return runtime.Bool{B: true}, nil
			}))
			d.Set("Receive", native("WebSocket.Receive", func([]runtime.Value) (runtime.Value, error) {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return nil, netError("WebSocket.Receive", err)
				}
				return runtime.Text{S: string(data)}, nil
			}))
			d.Set("Close", native("WebSocket.Close", func([]runtime.Value) (runtime.Value, error) {
				conn.Close()
				return runtime.Bool{B: true}, nil
			}))
			return d, nil
		}),
	})
}

// tcpModule dials a TCP endpoint; the connection Dict reads line-wise.
func tcpModule() runtime.Dict {
	return module(map[string]runtime.Value{
		"Connect": native("TCP.Connect", func(args []runtime.Value) (runtime.Value, error) {
			host, err := textArg(args, 0, "TCP.Connect")
			if err != nil {
				return nil, err
			}
			port, err := intArg(args, 1, "TCP.Connect")
			if err != nil {
				return nil, err
			}
			conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", host, port))
			if err != nil {
				return nil, netError("TCP.Connect", err)
			}
			reader := bufio.NewReader(conn)
			d := runtime.NewDict()
			d.Set("Send", native("TCP.Send", func(args []runtime.Value) (runtime.Value, error) {
				msg, err := textArg(args, 0, "TCP.Send")
				if err != nil {
					return nil, err
				}
				if _, err := conn.Write([]byte(msg)); err != nil {
					return nil, netError("TCP.Send", err)
				}
				return runtime.Bool{B: true}, nil
			}))
			d.Set("ReceiveLine", native("TCP.ReceiveLine", func([]runtime.Value) (runtime.Value, error) {
				line, err := reader.ReadString('\n')
				if err != nil && line == "" {
					return nil, netError("TCP.ReceiveLine", err)
				}
				return runtime.Text{S: strings.TrimRight(line, "\r\n")}, nil
			}))
			d.Set("Close", native("TCP.Close", func([]runtime.Value) (runtime.Value, error) {
				conn.Close()
				return runtime.Bool{B: true}, nil
			}))
			return d, nil
		}),
	})
}

// udpModule sends datagrams; connectionless, so only Send is offered.
func udpModule() runtime.Dict {
	return module(map[string]runtime.Value{
		"Send": native("UDP.Send", func(args []runtime.Value) (runtime.Value, error) {
			host, err := textArg(args, 0, "UDP.Send")
			if err != nil {
				return nil, err
			}
			port, err := intArg(args, 1, "UDP.Send")
			if err != nil {
				return nil, err
			}
			msg, err := textArg(args, 2, "UDP.Send")
			if err != nil {
				return nil, err
			}
			conn, err := net.Dial("udp", fmt.Sprintf("%s:%d", host, port))
			if err != nil {
				return nil, netError("UDP.Send", err)
			}
			defer conn.Close()
			if _, err := conn.Write([]byte(msg)); err != nil {
				return nil, netError("UDP.Send", err)
			}
			return runtime.Bool{B: true}, nil
		}),
	})
}

// llmModule posts a completion request to the endpoint named by the
// STORYLANG_LLM_URL environment variable. The request/response wire shape
// is the endpoint's concern; the module extracts a "text" field when one
// exists and otherwise returns the raw body.
func llmModule() runtime.Dict {
	return module(map[string]runtime.Value{
		"Complete": native("LLM.Complete", func(args []runtime.Value) (runtime.Value, error) {
			prompt, err := textArg(args, 0, "LLM.Complete")
			if err != nil {
				return nil, err
			}
			endpoint := os.Getenv("STORYLANG_LLM_URL")
			if endpoint == "" {
				return nil, runtime.NewError(runtime.KindSystem, "NetworkError", "LLM.Complete: STORYLANG_LLM_URL is not set")
			}
			body, _ := sjson.Set("{}", "prompt", prompt)
			resp, err := httpClient.Post(endpoint, "application/json", strings.NewReader(body))
			if err != nil {
				return nil, netError("LLM.Complete", err)
			}
			defer resp.Body.Close()
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, netError("LLM.Complete", err)
			}
			if text := gjson.GetBytes(data, "text"); text.Exists() {
				return runtime.Text{S: text.String()}, nil
			}
			return runtime.Text{S: string(data)}, nil
		}),
	})
}

func netError(op string, err error) error {
	sub := "NetworkError"
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		sub = "Timeout"
	}
	return runtime.WrapError(runtime.KindSystem, sub, op+": "+err.Error(), err)
}
