package irq

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLine_Raise(t *testing.T) {
	assert := assert.New(t)

	line := &Line{Name: "TIM2"}
	count := 0
	line.Raise(func() { count++ })
	assert.Equal(1, count)
	assert.False(line.Pending())
}

func TestLine_MaskLatches(t *testing.T) {
	assert := assert.New(t)

	line := &Line{}
	var order []int

	line.Mask()
	assert.True(line.Masked())
	line.Raise(func() { order = append(order, 1) })
	line.Raise(func() { order = append(order, 2) })
	assert.Empty(order)
	assert.True(line.Pending())

	line.Unmask()
	assert.False(line.Masked())
	assert.False(line.Pending())
	assert.Equal([]int{1, 2}, order)
}

func TestLine_Clear(t *testing.T) {
	assert := assert.New(t)

	line := &Line{}
	line.Mask()
	line.Raise(func() { t.Fatal("cleared handler ran") })
	assert.Equal(1, line.Clear())
	line.Unmask()
}

func TestLine_MaskWaitsForHandler(t *testing.T) {
	assert := assert.New(t)

	line := &Line{}
	inside := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	var finished bool

	wg.Add(1)
	go func() {
		defer wg.Done()
		line.Raise(func() {
			close(inside)
			<-release
			finished = true
		})
	}()

	<-inside
	masked := make(chan struct{})
	go func() {
		line.Mask()
		close(masked)
	}()

	select {
	case <-masked:
		t.Fatal("Mask returned while a handler was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-masked
	wg.Wait()
	assert.True(finished)
	assert.True(line.Masked())
}
