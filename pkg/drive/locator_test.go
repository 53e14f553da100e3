package drive_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	avdrive "github.com/ethpandaops/avataroor/pkg/drive"
	"github.com/ethpandaops/avataroor/pkg/drive/drivetest"
)

func TestLocator_FindExisting(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *drivetest.Fake, avatars, other string) string
		lookup string
	}{
		{
			name: "match",
			setup: func(f *drivetest.Fake, avatars, _ string) string {
				return f.AddFile("Bob.BEE", []byte("x"), avatars)
			},
			lookup: "Bob.BEE",
		},
		{
			name: "apostrophe in name",
			setup: func(f *drivetest.Fake, avatars, _ string) string {
				return f.AddFile("Bob's.BEE", []byte("x"), avatars)
			},
			lookup: "Bob's.BEE",
		},
		{
			name: "space in name",
			setup: func(f *drivetest.Fake, avatars, _ string) string {
				return f.AddFile("My Avatar.BEE", []byte("x"), avatars)
			},
			lookup: "My Avatar.BEE",
		},
		{
			name: "first of duplicates",
			setup: func(f *drivetest.Fake, avatars, _ string) string {
				id := f.AddFile("Bob.BEE", []byte("1"), avatars)
				f.AddFile("Bob.BEE", []byte("2"), avatars)

				return id
			},
			lookup: "Bob.BEE",
		},
		{
			name: "trashed ignored",
			setup: func(f *drivetest.Fake, avatars, _ string) string {
				f.Trash(f.AddFile("Bob.BEE", []byte("x"), avatars))

				return ""
			},
			lookup: "Bob.BEE",
		},
		{
			name: "other folder ignored",
			setup: func(f *drivetest.Fake, _, other string) string {
				f.AddFile("Bob.BEE", []byte("x"), other)

				return ""
			},
			lookup: "Bob.BEE",
		},
		{
			name: "folder with same name ignored",
			setup: func(f *drivetest.Fake, avatars, _ string) string {
				f.AddFolder("Bob.BEE", avatars)

				return ""
			},
			lookup: "Bob.BEE",
		},
		{
			name: "case sensitive",
			setup: func(f *drivetest.Fake, avatars, _ string) string {
				f.AddFile("bob.BEE", []byte("x"), avatars)

				return ""
			},
			lookup: "Bob.BEE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := drivetest.NewFake()
			avatars := fake.AddFolder(avdrive.AvatarsFolderName)
			other := fake.AddFolder(avdrive.PropsFolderName)
			want := tt.setup(fake, avatars, other)

			got, err := avdrive.NewLocator(testLogger()).
				FindExisting(context.Background(), fake, avatars, tt.lookup)
			require.NoError(t, err)

			if want == "" {
				assert.Nil(t, got)

				return
			}

			require.NotNil(t, got)
			assert.Equal(t, want, got.Id)
		})
	}
}

func TestLocator_ProviderFailure(t *testing.T) {
	fake := drivetest.NewFake()
	fake.SetError(drivetest.MethodListFiles, errors.New("boom"))

	_, err := avdrive.NewLocator(testLogger()).
		FindExisting(context.Background(), fake, "folder", "Bob.BEE")

	var perr *avdrive.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "list files", perr.Op)
}
