package admin

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/credentials"
	gs "github.com/dmitrijs2005/gophauth/internal/server/grpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

const testRoot = "0123456789abcdef0123456789abcdef-root"

func stubPasswords(t *testing.T, answers ...string) {
	t.Helper()
	old := readPassword
	t.Cleanup(func() { readPassword = old })
	readPassword = func(int) ([]byte, error) {
		if len(answers) == 0 {
			return nil, errors.New("no more input")
		}
		pw := answers[0]
		answers = answers[1:]
		return []byte(pw), nil
	}
}

func TestHash_VerifiesWithServerKey(t *testing.T) {
	stubPasswords(t, "Correct-Horse-9", "Correct-Horse-9")

	var out bytes.Buffer
	err := NewApp(&out).Run(context.Background(), []string{"hash", "-s", testRoot})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	hash := lines[len(lines)-1]
	require.True(t, strings.HasPrefix(hash, "$argon2id$"), hash)

	pepper, err := cryptox.DeriveKey([]byte(testRoot), cryptox.PurposePasswordPepper)
	require.NoError(t, err)
	h, err := credentials.NewHasher(pepper, credentials.DefaultParams())
	require.NoError(t, err)
	assert.True(t, h.Verify("Correct-Horse-9", hash))
}

func TestHash_Rejections(t *testing.T) {
	t.Run("mismatch", func(t *testing.T) {
		stubPasswords(t, "Correct-Horse-9", "Correct-Horse-8")
		err := NewApp(&bytes.Buffer{}).Run(context.Background(), []string{"hash", "-s", testRoot})
		require.EqualError(t, err, "passwords do not match")
	})

	t.Run("weak", func(t *testing.T) {
		stubPasswords(t, "weak", "weak")
		err := NewApp(&bytes.Buffer{}).Run(context.Background(), []string{"hash", "-s", testRoot})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "password")
	})

	t.Run("terminal error", func(t *testing.T) {
		stubPasswords(t)
		err := NewApp(&bytes.Buffer{}).Run(context.Background(), []string{"hash", "-s", testRoot})
		require.Error(t, err)
	})
}

func TestRun_Usage(t *testing.T) {
	app := NewApp(&bytes.Buffer{})
	require.ErrorIs(t, app.Run(context.Background(), nil), errUsage)
	require.ErrorIs(t, app.Run(context.Background(), []string{"frobnicate"}), errUsage)
}

type staticAuth map[string]int64

func (s staticAuth) Authenticate(_ context.Context, token string) (int64, error) {
	if token == "" {
		return 0, common.ErrNoAccessToken
	}
	id, ok := s[token]
	if !ok {
		return 0, common.ErrInvalidAccessToken
	}
	return id, nil
}

func newBufconnApp(t *testing.T, out *bytes.Buffer) *App {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := gs.NewGRPCServer("bufnet", logging.Nop(), staticAuth{"tok": 3})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	app := NewApp(out)
	app.dial = func(string) (*grpc.ClientConn, error) {
		return grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}
	return app
}

func TestWhoami(t *testing.T) {
	var out bytes.Buffer
	app := newBufconnApp(t, &out)

	require.NoError(t, app.Run(context.Background(), []string{"whoami", "-token", "tok"}))
	assert.Equal(t, "user-3\n", out.String())

	require.Error(t, app.Run(context.Background(), []string{"whoami", "-token", "nope"}))
}

func TestHealth(t *testing.T) {
	var out bytes.Buffer
	app := newBufconnApp(t, &out)

	require.NoError(t, app.Run(context.Background(), []string{"health"}))
	assert.Equal(t, "SERVING\n", out.String())
}
