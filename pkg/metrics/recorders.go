package metrics

// Pairing

// RecordRoundGenerated counts a committed round.
func RecordRoundGenerated() { globalManager.roundsGenerated.Inc() }

// RecordPairingPlan records the cost and outcome of one pairing search.
func RecordPairingPlan(strategy string, evaluated, steps int, durationMs, quality float64) {
	globalManager.pairingSetsEvaluated.Observe(float64(evaluated))
	globalManager.pairingSearchSteps.Observe(float64(steps))
	globalManager.pairingDuration.WithLabelValues(strategy).Observe(durationMs)
	globalManager.pairingQuality.Observe(quality)
}

// RecordPairingFailure counts a round that could not be paired.
func RecordPairingFailure(reason string) {
	globalManager.pairingFailures.WithLabelValues(reason).Inc()
}

// Ratings

// RecordRatingUpdate counts a match whose ratings were applied.
func RecordRatingUpdate() { globalManager.ratingUpdates.Inc() }

// RecordRatingUpdateError counts a failed rating attempt.
func RecordRatingUpdateError() { globalManager.ratingUpdateErrors.Inc() }

// RecordRatingUpdateRetry counts a rating attempt that will be retried.
func RecordRatingUpdateRetry() { globalManager.ratingUpdateRetries.Inc() }

// UpdateRatingDeadLetters sets the dead-letter backlog.
func UpdateRatingDeadLetters(n int) { globalManager.ratingDeadLetters.Set(float64(n)) }

// RecordSurpriseFactor observes how far an outcome was from its prediction.
func RecordSurpriseFactor(v float64) { globalManager.surpriseFactor.Observe(v) }

// Results

// RecordResultReported counts an accepted match result.
func RecordResultReported() { globalManager.resultsReported.Inc() }

// RecordResultDuplicate counts a repeated report.
func RecordResultDuplicate() { globalManager.resultsDuplicate.Inc() }

// UpdatePlayersRated sets the number of rated players.
func UpdatePlayersRated(n int) { globalManager.playersRated.Set(float64(n)) }

// HTTP

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Queue

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// RecordQueueProcessingLatency records enqueue latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Workers

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// Repository

// UpdateRepositoryRecordsTotal sets the number of ladder entries.
func UpdateRepositoryRecordsTotal(count int) {
	globalManager.repositoryRecordsTotal.Set(float64(count))
}

// RecordRepositoryUpdateLatency records store write latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records store read latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// Errors

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an HTTP error.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System

// UpdateSystemMemoryUsage sets the heap allocation in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }
