package redis

// Redis key naming conventions for tempo data.
// All keys are prefixed with "tempo:" to avoid collisions.

const keyPrefix = "tempo:"

// ── Job keys ──

// jobKey returns the key for a job entity: tempo:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// pendingKey is the Sorted Set of pending job IDs, scored so that higher
// priority sorts first and earlier due times break ties.
const pendingKey = keyPrefix + "pending"

// ── Schedule keys ──

// scheduleKey returns the key for a schedule entity: tempo:schedule:{id}
func scheduleKey(id string) string { return keyPrefix + "schedule:" + id }

// scheduleIDsKey is the Set tracking all schedule IDs for enumeration.
const scheduleIDsKey = keyPrefix + "schedule_ids"
