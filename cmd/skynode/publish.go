// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mzajic/go-skynode/config"
)

// publisher pushes each poll cycle's measurements to an MQTT broker,
// one topic per sensor domain.
type publisher struct {
	client mqtt.Client
}

// newPublisher returns nil when no broker is configured.
func newPublisher(cfg config.MQTTConfig) (*publisher, error) {
	if cfg.Broker == "" {
		return nil, nil
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	client := mqtt.NewClient(opts)
	if t := client.Connect(); t.Wait() && t.Error() != nil {
		return nil, t.Error()
	}
	log.Printf("mqtt: connected to %s", cfg.Broker)
	return &publisher{client: client}, nil
}

func (p *publisher) publish(prefix string, r *record) {
	if r.Env != nil {
		p.send(prefix+"/hygro", r.Env)
	}
	if r.Light != nil {
		p.send(prefix+"/light", r.Light)
	}
	if r.SQM != nil {
		p.send(prefix+"/sqm", r.SQM)
	}
	if r.Thermal != nil && r.Thermal.Valid {
		p.send(prefix+"/thermal", r.Thermal.Regions)
	}
	if r.Cloud != nil {
		p.send(prefix+"/cloud", r.Cloud)
	}
}

func (p *publisher) send(topic string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("mqtt: %s: %v", topic, err)
		return
	}
	// Fire and forget; a dropped sample is cheaper than a stalled poll
	// loop.
	p.client.Publish(topic, 0, false, data)
}

func (p *publisher) close() {
	p.client.Disconnect(250)
}
