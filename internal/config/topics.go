package config

const (
	// TopicQuestionTask is the NSQ topic carrying submitted questions when DISPATCH_MODE=nsq.
	TopicQuestionTask = "question.task"

	// ChannelPipeline is the consumer channel of the pipeline worker.
	ChannelPipeline = "pipeline"
)
