// Package job defines the Job entity, its status and priority model, the
// handler registry, and the persistence contract for the job subsystem.
package job
