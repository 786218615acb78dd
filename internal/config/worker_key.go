package config

type WorkerKeyStruct struct {
	PersistProfileQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistProfileQueue: "persist_profile_queue",
}
