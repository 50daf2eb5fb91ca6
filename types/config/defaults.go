package config

import "time"

const (
	DefaultListPollSchedule      = "@every 10s"
	DefaultDetailPollSchedule    = "@every 5s"
	DefaultMaxConcurrentFetches  = 5
	DefaultRefreshBatchLimit     = 25
	DefaultTransientFailureLimit = 0
	DefaultRemoteTimeout         = 15 * time.Second
	DefaultStorageDriver         = Memory
	DefaultLogMode               = "dev"
	DefaultEventChannel          = "dagsync.events"
)
