package pipeline

import (
	"context"

	"wet-coach-go/pkg/log"
	"wet-coach-go/pkg/tasks"
)

// InlinePublisher 在未配置 Kafka 时使用，直接在后台 goroutine 中运行 Processor。
type InlinePublisher struct {
	processor *Processor
	// done 用于测试等待后台处理完成，可为空。
	done chan<- error
}

// NewInlinePublisher 创建一个新的 InlinePublisher。
func NewInlinePublisher(processor *Processor) *InlinePublisher {
	return &InlinePublisher{processor: processor}
}

// Publish 立即返回，处理结果只记录日志。
func (p *InlinePublisher) Publish(_ context.Context, task tasks.TurnArchiveTask) error {
	go func() {
		err := p.processor.Process(context.Background(), task)
		if err != nil {
			log.Errorf("进程内归档失败: conversation=%s note=%d, error: %v", task.ConversationID, task.NoteID, err)
		}
		if p.done != nil {
			p.done <- err
		}
	}()
	return nil
}
