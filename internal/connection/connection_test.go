package connection

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/eternalApril/moonview/internal/command"
	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	connectErr error
	auth       bool
	closed     int
	calls      []string
	failAt     map[string]error // argument -> error returned by ECHO
	onCall     func(arg string)
}

func (f *fakeSession) Connect(context.Context) error { return f.connectErr }
func (f *fakeSession) Close() error                  { f.closed++; return nil }
func (f *fakeSession) Authenticated() bool           { return f.auth }

// pipelineSession adds batch support on top of fakeSession
type pipelineSession struct {
	*fakeSession
	failFrom int
}

func (p *pipelineSession) Pipeline(_ context.Context, argvs [][]string, outs []*result.Node) (int, error) {
	for i, argv := range argvs {
		if i == p.failFrom {
			return i, core.NewTransportError("read", errors.New("connection reset"))
		}
		p.calls = append(p.calls, argv[1])
		result.AppendChild(outs[i], core.MakeString(argv[1]))
	}
	return len(argvs), nil
}

func echo[S interface{ get() *fakeSession }](_ context.Context, s S, argv []string, out *result.Node) error {
	f := s.get()
	f.calls = append(f.calls, argv[0])
	if f.onCall != nil {
		f.onCall(argv[0])
	}
	if err, ok := f.failAt[argv[0]]; ok {
		if errors.Is(err, core.ErrBackend) {
			result.AppendChild(out, core.MakeError(err.Error()))
		}
		return err
	}
	result.AppendChild(out, core.MakeString(argv[0]))
	return nil
}

func (f *fakeSession) get() *fakeSession     { return f }
func (p *pipelineSession) get() *fakeSession { return p.fakeSession }

func fakeTable() *command.Table[*fakeSession] {
	return command.NewTable("fake", []command.Descriptor[*fakeSession]{
		{Name: "ECHO", MinArgs: 1, MaxArgs: 1, ReadOnly: true, Func: echo[*fakeSession]},
	})
}

func newConnected(t *testing.T, s *fakeSession) *Connection[*fakeSession] {
	t.Helper()
	c := New("fake", s, fakeTable())
	require.NoError(t, c.Connect(context.Background()))
	return c
}

func commandNodes(root *result.Node, lines ...string) Batch {
	batch := make(Batch, len(lines))
	for i, line := range lines {
		batch[i] = Entry{Command: line, Node: result.NewCommand(root, line)}
	}
	return batch
}

func TestConnection_Lifecycle(t *testing.T) {
	s := &fakeSession{auth: true}
	c := New("fake", s, fakeTable())

	assert.Equal(t, Disconnected, c.State())
	assert.False(t, c.IsConnected())

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.IsConnected())
	assert.True(t, c.IsAuthenticated())

	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Disconnect())
	assert.Equal(t, 1, s.closed, "second disconnect must be a no-op")
	assert.False(t, c.IsConnected())
}

func TestConnection_ConnectFailure(t *testing.T) {
	s := &fakeSession{connectErr: errors.New("refused")}
	c := New("fake", s, fakeTable())

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTransport)
	assert.Equal(t, Disconnected, c.State())
}

func TestConnection_Execute(t *testing.T) {
	s := &fakeSession{}
	c := newConnected(t, s)

	root := result.NewRoot("ECHO hello")
	require.NoError(t, c.Execute(context.Background(), "ECHO hello", root))

	v, ok := root.FirstValue()
	require.True(t, ok)
	assert.Equal(t, "hello", v.String())
}

func TestConnection_Execute_DispatchErrorsHaveNoSideEffects(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{"empty", "   ", core.ErrInvalidArgument},
		{"unknown", "NOPE x", core.ErrUnknownCommand},
		{"too few", "ECHO", core.ErrArity},
		{"too many", "ECHO a b", core.ErrArity},
		{"parse", `ECHO "open`, core.ErrParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSession{}
			c := newConnected(t, s)
			root := result.NewRoot(tt.line)

			err := c.Execute(context.Background(), tt.line, root)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, s.calls)
			assert.Empty(t, root.Children())
			assert.NoError(t, root.Err())
		})
	}
}

func TestConnection_Execute_NotConnected(t *testing.T) {
	c := New("fake", &fakeSession{}, fakeTable())
	err := c.Execute(context.Background(), "ECHO a", result.NewRoot("ECHO a"))
	assert.ErrorIs(t, err, core.ErrNotConnected)
}

func TestConnection_Execute_BackendError(t *testing.T) {
	s := &fakeSession{failAt: map[string]error{"bad": core.NewBackendError("ERR bad")}}
	c := newConnected(t, s)

	root := result.NewRoot("ECHO bad")
	err := c.Execute(context.Background(), "ECHO bad", root)
	assert.ErrorIs(t, err, core.ErrBackend)

	v, ok := root.FirstValue()
	require.True(t, ok)
	assert.True(t, v.IsError())
	assert.True(t, c.IsConnected())
}

func TestConnection_Pipeline_Sequential(t *testing.T) {
	s := &fakeSession{failAt: map[string]error{"b": core.NewBackendError("ERR b")}}
	c := newConnected(t, s)

	root := result.NewRoot("batch")
	batch := commandNodes(root, "ECHO a", "ECHO b", "ECHO c")
	require.NoError(t, c.ExecuteAsPipeline(context.Background(), batch))

	assert.Equal(t, []string{"a", "b", "c"}, s.calls)

	v, _ := batch[1].Node.FirstValue()
	assert.True(t, v.IsError(), "backend error stays on its entry")
	v, _ = batch[2].Node.FirstValue()
	assert.Equal(t, "c", v.String())
}

func TestConnection_Pipeline_TransportFailurePropagates(t *testing.T) {
	s := &fakeSession{failAt: map[string]error{"b": core.NewTransportError("write", errors.New("broken pipe"))}}
	c := newConnected(t, s)

	root := result.NewRoot("batch")
	batch := commandNodes(root, "ECHO a", "ECHO b", "ECHO c", "ECHO d")
	err := c.ExecuteAsPipeline(context.Background(), batch)
	require.ErrorIs(t, err, core.ErrTransport)

	v, ok := batch[0].Node.FirstValue()
	require.True(t, ok)
	assert.Equal(t, "a", v.String())
	assert.NoError(t, batch[0].Node.Err())

	for _, e := range batch[1:] {
		assert.ErrorIs(t, e.Node.Err(), core.ErrTransport, e.Command)
	}
	assert.Equal(t, []string{"a", "b"}, s.calls)
}

func TestConnection_Pipeline_ArityErrorBeforeIO(t *testing.T) {
	s := &fakeSession{}
	c := newConnected(t, s)

	root := result.NewRoot("batch")
	batch := commandNodes(root, "ECHO a", "ECHO", "ECHO c")
	err := c.ExecuteAsPipeline(context.Background(), batch)
	require.ErrorIs(t, err, core.ErrArity)

	assert.Empty(t, s.calls)
	for _, e := range batch {
		assert.Empty(t, e.Node.Children())
		assert.NoError(t, e.Node.Err())
	}
}

func TestConnection_Pipeline_Pipeliner(t *testing.T) {
	s := &pipelineSession{fakeSession: &fakeSession{}, failFrom: 2}
	table := command.NewTable("fake", []command.Descriptor[*pipelineSession]{
		{Name: "ECHO", MinArgs: 1, MaxArgs: 1, Func: echo[*pipelineSession]},
	})
	c := New("fake", s, table)
	require.NoError(t, c.Connect(context.Background()))

	root := result.NewRoot("batch")
	batch := commandNodes(root, "ECHO a", "ECHO b", "ECHO c", "ECHO d")
	err := c.ExecuteAsPipeline(context.Background(), batch)
	require.ErrorIs(t, err, core.ErrTransport)

	for i, want := range []string{"a", "b"} {
		v, ok := batch[i].Node.FirstValue()
		require.True(t, ok)
		assert.Equal(t, want, v.String())
	}
	assert.ErrorIs(t, batch[2].Node.Err(), core.ErrTransport)
	assert.ErrorIs(t, batch[3].Node.Err(), core.ErrTransport)
}

func TestConnection_Pipeline_FailureAtEveryPosition(t *testing.T) {
	args := []string{"a", "b", "c", "d", "e"}
	lines := make([]string, len(args))
	for i, arg := range args {
		lines[i] = "ECHO " + arg
	}

	check := func(t *testing.T, batch Batch, err error, k int) {
		t.Helper()
		require.ErrorIs(t, err, core.ErrTransport)
		for i, e := range batch {
			if i < k {
				v, ok := e.Node.FirstValue()
				require.True(t, ok, e.Command)
				assert.Equal(t, args[i], v.String())
				assert.NoError(t, e.Node.Err(), e.Command)
				continue
			}
			assert.ErrorIs(t, e.Node.Err(), core.ErrTransport, e.Command)
		}
	}

	for k := range args {
		t.Run(fmt.Sprintf("sequential/%d", k), func(t *testing.T) {
			s := &fakeSession{failAt: map[string]error{
				args[k]: core.NewTransportError("read", errors.New("connection reset")),
			}}
			c := newConnected(t, s)

			batch := commandNodes(result.NewRoot("batch"), lines...)
			err := c.ExecuteAsPipeline(context.Background(), batch)
			check(t, batch, err, k)
			assert.Equal(t, args[:k+1], s.calls)
		})

		t.Run(fmt.Sprintf("pipeliner/%d", k), func(t *testing.T) {
			s := &pipelineSession{fakeSession: &fakeSession{}, failFrom: k}
			table := command.NewTable("fake", []command.Descriptor[*pipelineSession]{
				{Name: "ECHO", MinArgs: 1, MaxArgs: 1, Func: echo[*pipelineSession]},
			})
			c := New("fake", s, table)
			require.NoError(t, c.Connect(context.Background()))

			batch := commandNodes(result.NewRoot("batch"), lines...)
			err := c.ExecuteAsPipeline(context.Background(), batch)
			check(t, batch, err, k)
			assert.Equal(t, args[:k], append([]string{}, s.calls...))
		})
	}
}

func TestConnection_Interrupt(t *testing.T) {
	s := &fakeSession{}
	c := newConnected(t, s)
	s.onCall = func(arg string) {
		if arg == "b" {
			c.Interrupt()
		}
	}

	root := result.NewRoot("batch")
	batch := commandNodes(root, "ECHO a", "ECHO b", "ECHO c")
	err := c.ExecuteAsPipeline(context.Background(), batch)
	require.ErrorIs(t, err, core.ErrInterrupted)

	assert.Equal(t, []string{"a", "b"}, s.calls)
	assert.ErrorIs(t, batch[2].Node.Err(), core.ErrInterrupted)
	assert.True(t, c.IsInterrupted())
	assert.True(t, c.IsConnected(), "interruption keeps the transport open")

	c.ResetInterrupted()
	assert.False(t, c.IsInterrupted())
	s.onCall = nil

	root = result.NewRoot("ECHO again")
	require.NoError(t, c.Execute(context.Background(), "ECHO again", root))
}

func TestConnection_DeadlineKeepsTransportError(t *testing.T) {
	timeout := core.NewTransportError("read", context.DeadlineExceeded)
	s := &fakeSession{failAt: map[string]error{"slow": timeout}}
	c := newConnected(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	s.onCall = func(string) { cancel() }

	root := result.NewRoot("ECHO slow")
	err := c.Execute(ctx, "ECHO slow", root)
	require.ErrorIs(t, err, core.ErrTransport)
	assert.NotErrorIs(t, err, core.ErrInterrupted)
	var te *core.TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// an explicit interruption adds ErrInterrupted and keeps the cause
	s.onCall = func(string) { c.Interrupt() }
	root = result.NewRoot("ECHO slow")
	err = c.Execute(context.Background(), "ECHO slow", root)
	assert.ErrorIs(t, err, core.ErrInterrupted)
	assert.ErrorIs(t, err, core.ErrTransport)
	assert.ErrorIs(t, root.Err(), core.ErrTransport)
}

func TestConnection_InterruptBeforeExecute(t *testing.T) {
	s := &fakeSession{}
	c := newConnected(t, s)
	c.Interrupt()

	root := result.NewRoot("ECHO a")
	err := c.Execute(context.Background(), "ECHO a", root)
	assert.ErrorIs(t, err, core.ErrInterrupted)
	assert.Empty(t, s.calls)
}
