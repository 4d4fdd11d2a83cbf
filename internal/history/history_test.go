package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "github.com/ovoronin/pgobserve/internal/model"
)

func summaryWithKey(key string) *models.Summary {
	return &models.Summary{DBKey: key, Version: "13.4"}
}

func TestLogAddAndLatest(t *testing.T) {
	log := NewLog(3)
	assert.Nil(t, log.Latest())
	assert.Zero(t, log.Len())

	log.Add(summaryWithKey("first"))
	log.Add(summaryWithKey("second"))

	require.NotNil(t, log.Latest())
	assert.Equal(t, "second", log.Latest().DBKey)
	assert.Equal(t, 2, log.Len())
}

func TestLogEviction(t *testing.T) {
	log := NewLog(3)
	for i := 1; i <= 5; i++ {
		log.Add(summaryWithKey(fmt.Sprintf("cycle-%d", i)))
	}

	// Only the newest three remain, newest first
	assert.Equal(t, 3, log.Len())
	list := log.List()
	require.Len(t, list, 3)
	assert.Equal(t, "cycle-5", list[0].DBKey)
	assert.Equal(t, "cycle-4", list[1].DBKey)
	assert.Equal(t, "cycle-3", list[2].DBKey)
}

func TestLogDefaultLimit(t *testing.T) {
	log := NewLog(0)
	for i := 0; i < DefaultLimit+5; i++ {
		log.Add(summaryWithKey(fmt.Sprintf("cycle-%d", i)))
	}
	assert.Equal(t, DefaultLimit, log.Len())
}

func TestLogConcurrentAccess(t *testing.T) {
	log := NewLog(5)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			log.Add(summaryWithKey(fmt.Sprintf("writer-%d", n)))
		}(i)
		go func() {
			defer wg.Done()
			_ = log.Latest()
			_ = log.List()
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, log.Len())
}
