// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type cronjob struct {
	task      func()
	interval  time.Duration
	nextEvent time.Time
}

// cron runs named interval tasks in their own goroutine, used by the
// Dispatcher to periodically sweep for expired and retry-due bundles
// instead of placing one timer per bundle. Adapted from
// pkg/routing/cron.go's Cron, trimmed to the single-tick granularity the
// dispatcher's sweep actually needs.
type cron struct {
	jobs  map[string]*cronjob
	mutex sync.Mutex

	stopSyn chan struct{}
	stopAck chan struct{}
}

func newCron() *cron {
	c := &cron{
		jobs:    make(map[string]*cronjob),
		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *cron) loop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopSyn:
			close(c.stopAck)
			return
		case t := <-ticker.C:
			c.fire(t)
		}
	}
}

func (c *cron) fire(t time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for name, job := range c.jobs {
		if job.nextEvent.After(t) {
			continue
		}
		job.nextEvent = job.nextEvent.Add(job.interval)
		go job.task()

		log.WithFields(log.Fields{
			"job":        name,
			"interval":   job.interval,
			"next_event": job.nextEvent,
		}).Debug("dispatcher cron executed job")
	}
}

func (c *cron) stop() {
	close(c.stopSyn)
	<-c.stopAck
}

func (c *cron) register(name string, task func(), interval time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.jobs[name]; exists {
		return fmt.Errorf("routing: cron job %q is already registered", name)
	}
	if interval < time.Second {
		return fmt.Errorf("routing: cron interval %v is shorter than a second", interval)
	}

	c.jobs[name] = &cronjob{
		task:      task,
		interval:  interval,
		nextEvent: time.Now().Add(interval),
	}
	return nil
}
