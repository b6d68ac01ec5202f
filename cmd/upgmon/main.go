package main

import (
	"flag"
	"log"
	"os"

	"github.com/golang/protobuf/jsonpb"

	"github.com/robotalks/aicupg/pkg/monitor/mqtt"
)

var (
	mqttURL  = "mqtt://localhost:1883/"
	deviceID = "+"
)

func init() {
	if val := os.Getenv("AICUPG_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&deviceID, "id", deviceID, "Device ID to watch.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	defer q.Close()

	m := &jsonpb.Marshaler{Indent: "  "}
	q.Sub(mqtt.DeviceTopic(deviceID, "#"), func(topic string, payload []byte) {
		ev, err := mqtt.DecodeEvent(payload)
		if err != nil {
			log.Printf("%s: bad event: %v", topic, err)
			return
		}
		out, err := m.MarshalToString(ev)
		if err != nil {
			log.Printf("%s: %v", topic, err)
			return
		}
		log.Printf("%s: [%s] %s", topic, mqtt.EventKind(ev), out)
	})
	<-(chan struct{})(nil)
}
