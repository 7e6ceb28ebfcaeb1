// Package notify delivers post-commit booking notifications.
//
// A committed booking becomes two independent tasks: the attendee
// confirmation, which carries the calendar invite, and the owner
// notification. Each is enqueued on its own so one failing never affects the
// other, and each has its own tracked status. The queue is either in-process (LocalQueue) or durable on
// Redis through asynq (AsynqQueue plus Worker). Nothing is retried.
package notify
