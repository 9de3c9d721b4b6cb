package bridge

import "context"

// CommandSender is held by the dispatch context.
type CommandSender interface {
    Send(Command) error
}

// CommandReceiver is held by the service adapter in the network context.
type CommandReceiver interface {
    TryRecv() (Command, error)
}

// EventSender is held by the service adapter in the network context.
type EventSender interface {
    Send(Event) error
}

// Options bounds the queues; zero keeps a queue unbounded.
type Options struct {
    CommandCapacity int
    EventCapacity   int
}

// Bridge owns both queues. It is created once at startup and lives as long
// as the process.
type Bridge struct {
    Commands *Queue[Command]
    Events   *Queue[Event]
}

func New(opts Options) *Bridge {
    return &Bridge{
        Commands: NewQueue[Command](opts.CommandCapacity),
        Events:   NewQueue[Event](opts.EventCapacity),
    }
}

// Close closes both queues.
func (b *Bridge) Close() {
    b.Commands.Close()
    b.Events.Close()
}

// EventReceiver is held by the dispatcher. Close marks the consumer as gone.
type EventReceiver interface {
    Recv(ctx context.Context) (Event, error)
    Close()
}
