package chunker

import (
	"sync"

	"github.com/RecoveryAshes/PageChunker/internal/utils"
	"github.com/pkoukk/tiktoken-go"
)

var (
	encoderCache   = make(map[string]*tiktoken.Tiktoken)
	encoderCacheMu sync.RWMutex
)

// getEncoder 按编码名返回缓存的 tiktoken 编码器
func getEncoder(encoding string) (*tiktoken.Tiktoken, error) {
	encoderCacheMu.RLock()
	if tkm, ok := encoderCache[encoding]; ok {
		encoderCacheMu.RUnlock()
		return tkm, nil
	}
	encoderCacheMu.RUnlock()

	encoderCacheMu.Lock()
	defer encoderCacheMu.Unlock()

	if tkm, ok := encoderCache[encoding]; ok {
		return tkm, nil
	}

	tkm, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	encoderCache[encoding] = tkm
	return tkm, nil
}

// tokenCounter 为分块统计token数, 编码器不可用时为nil, Count 返回0
type tokenCounter struct {
	tkm *tiktoken.Tiktoken
}

func newTokenCounter(encoding string) *tokenCounter {
	if encoding == "" {
		return nil
	}
	tkm, err := getEncoder(encoding)
	if err != nil {
		utils.Warnf("⚠️  加载token编码 %s 失败, 已禁用token统计: %v", encoding, err)
		return nil
	}
	return &tokenCounter{tkm: tkm}
}

// Count 统计token数
func (t *tokenCounter) Count(text string) int {
	if t == nil || text == "" {
		return 0
	}
	return len(t.tkm.Encode(text, nil, nil))
}
