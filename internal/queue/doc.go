// Package queue provides the sample queue that sits between the feeding
// caller and the playback loop. Buffers leave in exactly the order they
// were pushed.
package queue
