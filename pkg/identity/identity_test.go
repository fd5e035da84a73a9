package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoles(t *testing.T) {
	t.Parallel()

	t.Run("既知のロールのみが集合に含まれること", func(t *testing.T) {
		t.Parallel()

		rs := RolesFromStrings([]string{"admin", "superuser", "USER"})
		assert.True(t, rs.Has(RoleUser))
		assert.True(t, rs.IsAdmin())
		assert.Equal(t, []string{"user", "admin"}, rs.Strings())
	})

	t.Run("空の集合は管理者ではないこと", func(t *testing.T) {
		t.Parallel()

		var rs Roles
		assert.False(t, rs.IsAdmin())
		assert.Empty(t, rs.Strings())
	})
}

func TestEncodeDecodeRoles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		want    Roles
		wantErr bool
	}{
		{name: "ヘッダーが空ならuserになること", header: "", want: NewRoles(RoleUser)},
		{name: "JSON配列を解釈できること", header: `["user","admin"]`, want: NewRoles(RoleUser, RoleAdmin)},
		{name: "順序は問わないこと", header: `["admin","user"]`, want: NewRoles(RoleUser, RoleAdmin)},
		{name: "空配列はロール無しになること", header: `[]`, want: 0},
		{name: "JSONでない値はエラーになること", header: `admin`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := DecodeRoles(tt.header)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("エンコード結果をそのまま復元できること", func(t *testing.T) {
		t.Parallel()

		rs := NewRoles(RoleAdmin, RoleUser)
		assert.Equal(t, `["user","admin"]`, EncodeRoles(rs))
		got, err := DecodeRoles(EncodeRoles(rs))
		require.NoError(t, err)
		assert.Equal(t, rs, got)
	})
}

func TestIdentityContext(t *testing.T) {
	t.Parallel()

	id := Identity{Subject: "user-1", Roles: DefaultRoles()}
	ctx := WithContext(context.Background(), id)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
