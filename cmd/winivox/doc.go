// Command winivox operates the audio story pipeline: it runs the queue
// worker and the HTTP API, drives single submissions through the pipeline,
// and inspects submissions, the published feed and the event log.
package main
