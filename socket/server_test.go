package socket

import (
	"context"
	"log"
	"testing"
	"time"
)

func TestServer_Serve(t *testing.T) {
	socketName := "/tmp/_sea_socket_test.socket"
	sw := NewServer(socketName, Action{
		Name: "ping",
		Handler: func(_ Request) Response {
			return NewResponse(StatusOk, "pong", "")
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := sw.Serve(ctx); err != nil {
			log.Print("err:", err)
		}
	}()

	go func() {
		for {
			select {
			case err := <-sw.Errors():
				log.Print(err)
			case <-ctx.Done():
				return
			}
		}
	}()

	time.Sleep(time.Second)

	client := NewClient(socketName)

	resp, err := client.Send(Request{Action: "ping"})
	if err != nil {
		t.Error(err)
		t.FailNow()
	}

	if resp.Status != StatusOk {
		t.Errorf("resp.Status != StatusOk; %d != %d", resp.Status, StatusOk)
		t.FailNow()
	}

	if string(resp.Data) != `"pong"` {
		t.Errorf("resp.Data(%s) != \"pong\"", string(resp.Data))
		t.FailNow()
	}

	resp, err = client.Send(Request{Action: "unknown"})
	if err != nil {
		t.Error(err)
		t.FailNow()
	}

	if resp.Status != StatusErr {
		t.Errorf("resp.Status != StatusErr; %d != %d", resp.Status, StatusErr)
		t.FailNow()
	}
}
