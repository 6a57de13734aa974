// Package pipeline 定义了探询记录落库的核心流程。
package pipeline

import (
	"context"
	"fmt"

	"monet-probing/internal/model"
	"monet-probing/internal/repository"
	"monet-probing/pkg/log"
	"monet-probing/pkg/tasks"
)

// ResponseIndexer 把记录写入检索索引。
type ResponseIndexer interface {
	IndexResponse(ctx context.Context, resp *model.ProbeResponse) error
}

// TranscriptArchiver 归档一次会话的完整对话。
type TranscriptArchiver interface {
	ArchiveTranscript(ctx context.Context, key string, sessionNo int, messages []model.ChatMessage) error
}

// Processor 封装了探询记录持久化的所有依赖和逻辑。
// indexer 和 archiver 可以为 nil，表示未启用对应的存储。
type Processor struct {
	responses repository.ResponseRepository
	history   repository.ConversationRepository
	indexer   ResponseIndexer
	archiver  TranscriptArchiver
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	responses repository.ResponseRepository,
	history repository.ConversationRepository,
	indexer ResponseIndexer,
	archiver TranscriptArchiver,
) *Processor {
	return &Processor{
		responses: responses,
		history:   history,
		indexer:   indexer,
		archiver:  archiver,
	}
}

// Persist 在当前调用中完成持久化，用于 direct 模式。
func (p *Processor) Persist(ctx context.Context, resp *model.ProbeResponse) error {
	return p.Process(ctx, tasks.ProbeResponseTask{Record: *resp})
}

// Process 是持久化的主函数。只有写入数据库失败会返回错误，索引和归档失败只记录日志。
func (p *Processor) Process(ctx context.Context, task tasks.ProbeResponseTask) error {
	rec := task.Record
	key := rec.Key()
	log.Infow("[Processor] 开始处理探询记录", "taskId", task.TaskID, "key", key, "sessionNo", rec.SessionNo, "qsNo", rec.QsNo)

	// 1. 写入数据库
	if err := p.responses.Save(ctx, &rec); err != nil {
		return fmt.Errorf("保存探询记录失败: %w", err)
	}

	// 2. 写入检索索引
	if p.indexer != nil {
		if err := p.indexer.IndexResponse(ctx, &rec); err != nil {
			log.Warnw("[Processor] 索引探询记录失败", "key", key, "docId", rec.DocumentID(), "error", err)
		}
	}

	// 3. 会话结束时归档对话
	if rec.Ended && p.archiver != nil {
		p.archive(ctx, key, rec.SessionNo)
	}

	log.Infow("[Processor] 探询记录处理完成", "taskId", task.TaskID, "key", key)
	return nil
}

func (p *Processor) archive(ctx context.Context, key string, sessionNo int) {
	messages, err := p.history.Messages(ctx, key)
	if err != nil {
		log.Warnw("[Processor] 读取对话历史失败，跳过归档", "key", key, "error", err)
		return
	}
	if len(messages) == 0 {
		return
	}
	if err := p.archiver.ArchiveTranscript(ctx, key, sessionNo, messages); err != nil {
		log.Warnw("[Processor] 归档对话失败", "key", key, "sessionNo", sessionNo, "error", err)
	}
}
