package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/guard.go/pkg/msgs"
	"github.com/robotalks/guard.go/pkg/state"
	"github.com/robotalks/guard.go/pkg/telemetry"
)

var (
	mqttURL = "mqtt://localhost:1883/guard/"
	mode    string
	device  string
)

func init() {
	if val := os.Getenv("GUARD_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&mode, "mode", mode, "Publish a mode command (toy or guard) and exit.")
	flag.StringVar(&device, "device", device, "Device ID the mode command is sent to.")
}

func main() {
	flag.Parse()
	defer glog.Flush()

	q, err := telemetry.NewQueueFromURL(mqttURL)
	if err != nil {
		glog.Exit(err)
	}
	if err := q.Connect(); err != nil {
		glog.Exit(err)
	}
	defer q.Close()

	if mode != "" {
		sendMode(q)
		return
	}

	if _, err := q.Subscribe("+/"+telemetry.TopicStatus, func(topic string, payload []byte) {
		var status msgs.Status
		if err := msgs.Decode(payload, &status); err != nil {
			glog.Warningf("%s: bad message: %v", topic, err)
			return
		}
		fmt.Printf("%s %s: %s\n", time.Now().Format("15:04:05.000"), topic, status.String())
	}); err != nil {
		glog.Exit(err)
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	<-sigCh
}

func sendMode(q *telemetry.Queue) {
	if device == "" {
		glog.Exit("-device is required with -mode")
	}
	m, err := state.ParseMode(mode)
	if err != nil {
		glog.Exit(err)
	}
	data, err := msgs.Encode(&msgs.ModeCommand{Mode: m.String(), Issuer: "guardmon"})
	if err != nil {
		glog.Exit(err)
	}
	if err := q.Publish(telemetry.ModeCommandTopic(device), data); err != nil {
		glog.Exit(err)
	}
	fmt.Printf("%s: mode %s sent\n", device, m)
}
