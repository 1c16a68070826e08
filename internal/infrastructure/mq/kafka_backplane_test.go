package mq

import (
	"testing"

	myconfig "roomchat_server/internal/config"
)

func TestConsumerGroupFromConfig(t *testing.T) {
	k := NewKafkaBackplane(myconfig.KafkaConfig{HostPort: "127.0.0.1:9092", BackplaneTopic: "t", ConsumerGroup: "roomchat-host-8000"}, "p1")
	defer k.Close()
	if k.groupID != "roomchat-host-8000" {
		t.Fatalf("groupID = %q", k.groupID)
	}
}

func TestConsumerGroupFallsBackToProcessID(t *testing.T) {
	k := NewKafkaBackplane(myconfig.KafkaConfig{HostPort: "127.0.0.1:9092", BackplaneTopic: "t"}, "p1")
	defer k.Close()
	if k.groupID != "roomchat-p1" {
		t.Fatalf("groupID = %q", k.groupID)
	}
}
