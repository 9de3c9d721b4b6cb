package bridge

import (
    "context"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
    q := NewQueue[int](0)
    for i := 0; i < 5000; i++ {
        require.NoError(t, q.Send(i))
    }
    for i := 0; i < 5000; i++ {
        v, err := q.TryRecv()
        require.NoError(t, err)
        require.Equal(t, i, v)
    }
    _, err := q.TryRecv()
    require.ErrorIs(t, err, ErrEmpty)
}

func TestQueueInterleavedKeepsOrder(t *testing.T) {
    q := NewQueue[int](0)
    next, want := 0, 0
    for round := 0; round < 3000; round++ {
        for i := 0; i < 3; i++ {
            require.NoError(t, q.Send(next))
            next++
        }
        for i := 0; i < 2; i++ {
            v, err := q.TryRecv()
            require.NoError(t, err)
            require.Equal(t, want, v)
            want++
        }
    }
    require.Equal(t, next-want, q.Len())
}

func TestQueueCloseDrainsThenReportsClosed(t *testing.T) {
    q := NewQueue[string](0)
    require.NoError(t, q.Send("a"))
    q.Close()
    require.ErrorIs(t, q.Send("b"), ErrClosed)

    v, err := q.Recv(context.Background())
    require.NoError(t, err)
    require.Equal(t, "a", v)
    _, err = q.Recv(context.Background())
    require.ErrorIs(t, err, ErrClosed)
    _, err = q.TryRecv()
    require.ErrorIs(t, err, ErrClosed)
}

func TestQueueBoundedDrops(t *testing.T) {
    q := NewQueue[int](2)
    require.NoError(t, q.Send(1))
    require.NoError(t, q.Send(2))
    require.ErrorIs(t, q.Send(3), ErrFull)
    v, err := q.TryRecv()
    require.NoError(t, err)
    require.Equal(t, 1, v)
    require.NoError(t, q.Send(4))
    require.Equal(t, 2, q.Len())
}

func TestQueueRecvBlocksUntilSend(t *testing.T) {
    q := NewQueue[int](0)
    got := make(chan int, 1)
    go func() {
        v, err := q.Recv(context.Background())
        if err == nil {
            got <- v
        }
    }()
    time.Sleep(20 * time.Millisecond)
    require.NoError(t, q.Send(9))
    select {
    case v := <-got:
        require.Equal(t, 9, v)
    case <-time.After(time.Second):
        t.Fatal("receiver not woken")
    }
}

func TestQueueRecvHonoursContext(t *testing.T) {
    q := NewQueue[int](0)
    ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
    defer cancel()
    _, err := q.Recv(ctx)
    require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueManyProducersPerProducerOrder(t *testing.T) {
    q := NewQueue[[2]int](0)
    const producers, per = 8, 500
    var wg sync.WaitGroup
    for p := 0; p < producers; p++ {
        wg.Add(1)
        go func(p int) {
            defer wg.Done()
            for i := 0; i < per; i++ {
                _ = q.Send([2]int{p, i})
            }
        }(p)
    }
    wg.Wait()
    q.Close()

    last := make([]int, producers)
    for i := range last {
        last[i] = -1
    }
    n := 0
    for {
        v, err := q.Recv(context.Background())
        if err != nil {
            require.ErrorIs(t, err, ErrClosed)
            break
        }
        require.Greater(t, v[1], last[v[0]])
        last[v[0]] = v[1]
        n++
    }
    require.Equal(t, producers*per, n)
}
