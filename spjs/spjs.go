// Package spjs is a client for serial-port-json-server, used to reach
// a controller attached to another host.
package spjs

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const reconnectDelay = 3 * time.Second

type SPJS struct {
	url string
	log *slog.Logger

	outgoing  chan message
	incomming chan interface{}
}

type message struct {
	done    chan struct{}
	payload []byte
}

type DataFrame struct {
	Port string `json:"P"`
	Data string `json:"D"`
}
type CmdStatus struct {
	Cmd        string
	QueueCount int `json:"QCnt"`
	Type       []string
	Data       []string `json:"D"`
	ID         string   `json:"Id"`
}

type ErrorMessage struct {
	Error string
}
type SerialPortList struct {
	SerialPorts []SerialPort
}
type SerialPort struct {
	Name            string
	Friendly        string
	IsOpen          bool
	IsPrimary       bool
	Baud            int
	BufferAlgorithm string
}

func NewSPJS(url string, log *slog.Logger) *SPJS {
	sp := &SPJS{
		url:       url,
		log:       log.With("spjs", url),
		outgoing:  make(chan message, 1000),
		incomming: make(chan interface{}, 1000),
	}

	go sp.loop()

	return sp
}

// Messages returns the stream of decoded server messages.
func (sp *SPJS) Messages() chan interface{} {
	return sp.incomming
}

func parseMessage(data []byte) (val interface{}, err error) {
	var msg map[string]json.RawMessage
	err = json.Unmarshal(data, &msg)
	if err != nil {
		return nil, err
	}
	check := func(fieldName string, v interface{}) bool {
		if msg[fieldName] == nil {
			return false
		}
		val = v
		err = json.Unmarshal(data, val)
		return true
	}
	if check("Error", &ErrorMessage{}) {
		return
	}
	if check("SerialPorts", &SerialPortList{}) {
		return
	}
	if check("Cmd", &CmdStatus{}) {
		return
	}
	if check("D", &DataFrame{}) {
		return
	}

	return nil, errors.New("unknown message: " + string(data))
}

func (sp *SPJS) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			sp.log.Error("read", "err", err)
			return
		}
		if !bytes.HasPrefix(data, []byte("{")) {
			// ignore echo messages
			continue
		}
		val, err := parseMessage(data)
		if err != nil {
			sp.log.Debug("parse", "err", err)
			continue
		}
		sp.incomming <- val
	}
}

func (sp *SPJS) loop() {
	var nextUp message

reconnect:
	for {
		sp.log.Info("connecting")
		ws, _, err := websocket.DefaultDialer.Dial(sp.url, nil)
		if err != nil {
			sp.log.Error("connect", "err", err)
			time.Sleep(reconnectDelay)
			continue
		}
		sp.log.Info("connected")
		ch := make(chan struct{})
		go sp.readLoop(ws, ch)
		go sp.WriteString("list") // refresh list on reconnect

		for {
			if nextUp.done != nil {
				err = ws.WriteMessage(websocket.TextMessage, nextUp.payload)
				if err != nil {
					sp.log.Error("send", "err", err)
					ws.Close()
					continue reconnect
				}
				close(nextUp.done)
				nextUp.done = nil
			}

			select {
			case <-ch:
				ws.Close()
				continue reconnect
			case nextUp = <-sp.outgoing:
			}
		}
	}
}

type JSON struct {
	Port string `json:"P"`
	Data []Data
}
type Data struct {
	Data string `json:"D"`
	ID   string `json:"Id"`
}

func (sp *SPJS) SendJSON(v JSON) {
	data, err := json.Marshal(v)
	if err != nil {
		// shouldn't happen since we control everything that's sent out
		panic(err)
	}

	ch := make(chan struct{})
	sp.outgoing <- message{done: ch, payload: append([]byte("sendjson "), data...)}
	<-ch
}

func (sp *SPJS) WriteString(data string) {
	ch := make(chan struct{})
	sp.outgoing <- message{done: ch, payload: []byte(data)}
	<-ch
}
