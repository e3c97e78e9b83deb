package tr

import (
	"context"
	"testing"

	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTx struct{ pgx.Tx }

func TestTxFromCtx(t *testing.T) {
	_, err := TxFromCtx(context.Background())
	assert.ErrorIs(t, err, e.ErrTransactionNotFound)

	_, err = TxFromCtx(context.WithValue(context.Background(), "tx", stubTx{}))
	assert.ErrorIs(t, err, e.ErrTransactionNotFound)

	want := stubTx{}
	got, err := TxFromCtx(WithTx(context.Background(), want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
