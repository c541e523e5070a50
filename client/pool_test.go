package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdisle/birdisle/blocking"
	"github.com/birdisle/birdisle/command"
	"github.com/birdisle/birdisle/server"
	"github.com/birdisle/birdisle/storage"
)

func startServer(t *testing.T) string {
	t.Helper()
	ks := storage.New()
	d := command.NewDispatcher(&sync.Mutex{}, ks, blocking.NewCoordinator())
	srv := server.NewServer("", d)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		_ = srv.Stop()
		d.Close()
		_ = ks.Close()
	})
	return srv.Addr()
}

func TestConn_Do(t *testing.T) {
	addr := startServer(t)
	ctx := context.Background()

	c, err := Dial(ctx, addr)
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.Do(ctx, "SET", "n", 41)
	require.NoError(t, err)
	assert.Equal(t, "OK", reply.String())

	reply, err = c.Do(ctx, "INCRBYFLOAT", "n", 0.5)
	require.NoError(t, err)
	assert.Equal(t, "41.5", reply.String())

	reply, err = c.Do(ctx, "LPUSH", "n", []byte("x"))
	require.Error(t, err)
	var replyErr *ReplyError
	require.ErrorAs(t, err, &replyErr)
	assert.Equal(t, "WRONGTYPE", replyErr.Prefix())
	assert.True(t, reply.IsError())
	assert.False(t, c.Broken())

	_, err = c.Do(ctx, struct{}{})
	assert.Error(t, err)
}

func TestConn_ContextDeadline(t *testing.T) {
	addr := startServer(t)

	c, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Do(ctx, "BLPOP", "never", 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, c.Broken())

	_, err = c.Do(context.Background(), "PING")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPool_Do(t *testing.T) {
	addr := startServer(t)
	ctx := context.Background()

	p := NewPool(ctx, addr, PoolConfig{MaxTotal: 4})
	defer p.Close(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Do(ctx, "INCR", "hits")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	reply, err := p.Do(ctx, "GET", "hits")
	require.NoError(t, err)
	assert.Equal(t, "32", reply.String())
	assert.Equal(t, 0, p.Active())
	assert.LessOrEqual(t, p.Idle(), 4)
}

func TestPool_DiscardsBrokenConnections(t *testing.T) {
	addr := startServer(t)
	ctx := context.Background()

	p := NewPool(ctx, addr, PoolConfig{MaxTotal: 1, PingOnBorrow: true})
	defer p.Close(ctx)

	c, err := p.Get(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, p.Put(ctx, c))
	assert.Equal(t, 0, p.Idle())

	reply, err := p.Do(ctx, "PING")
	require.NoError(t, err)
	assert.Equal(t, "PONG", reply.String())
}

func TestPool_Closed(t *testing.T) {
	addr := startServer(t)
	ctx := context.Background()

	p := NewPool(ctx, addr, DefaultPoolConfig())
	p.Close(ctx)

	_, err := p.Get(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}
