package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/blogstore/models"
	"github.com/Skryldev/blogstore/repo"
	"github.com/Skryldev/blogstore/testutil"
)

func TestPostRepo_SaveAndFind(t *testing.T) {
	r, _ := newRepos(t)
	ctx := context.Background()

	owner := saveUser(t, r, "Alice")
	p := &models.Post{Title: "Hello", Content: "World", User: &models.User{ID: owner.ID}}

	saved, err := r.Posts.Save(ctx, p)
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)
	assert.Equal(t, "Alice", saved.User.Name, "owner is resolved on save")

	got, ok, err := r.Posts.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Hello", got.Title)
	assert.Equal(t, "World", got.Content)
	require.NotNil(t, got.User)
	assert.Equal(t, owner.ID, got.User.ID)
	assert.Equal(t, "Alice", got.User.Name)
}

func TestPostRepo_FindByID_Absent(t *testing.T) {
	r, _ := newRepos(t)

	got, ok, err := r.Posts.FindByID(context.Background(), 999999)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestPostRepo_Save_OwnerMissing(t *testing.T) {
	r, _ := newRepos(t)
	ctx := context.Background()

	_, err := r.Posts.Save(ctx, &models.Post{Title: "t", Content: "c", User: &models.User{ID: 777}})
	require.Error(t, err)
	assert.True(t, repo.IsPersistenceError(err))
	assert.ErrorIs(t, err, repo.ErrOwnerNotFound)
}

func TestPostRepo_Save_Invalid(t *testing.T) {
	r, _ := newRepos(t)
	ctx := context.Background()
	owner := saveUser(t, r, "Alice")

	cases := map[string]*models.Post{
		"no title":        {Content: "c", User: owner},
		"no content":      {Title: "t", User: owner},
		"no owner":        {Title: "t", Content: "c"},
		"transient owner": {Title: "t", Content: "c", User: &models.User{Name: "new"}},
		"already saved":   {ID: 9, Title: "t", Content: "c", User: owner},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Posts.Save(ctx, p)
			assert.ErrorIs(t, err, models.ErrInvalid)
			assert.False(t, repo.IsPersistenceError(err))
		})
	}
}

func TestPostRepo_FindByUserID_SharesOwner(t *testing.T) {
	r, _ := newRepos(t)
	ctx := context.Background()

	alice := saveUser(t, r, "Alice")
	bob := saveUser(t, r, "Bob")
	first := savePost(t, r, alice, "one")
	savePost(t, r, bob, "bob's")
	second := savePost(t, r, alice, "two")

	posts, err := r.Posts.FindByUserID(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, first.ID, posts[0].ID)
	assert.Equal(t, second.ID, posts[1].ID)
	assert.Same(t, posts[0].User, posts[1].User)
	assert.Equal(t, alice.ID, posts[0].User.ID)

	none, err := r.Posts.FindByUserID(ctx, 999999)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestPostRepo_Update_ReassignsOwner(t *testing.T) {
	r, _ := newRepos(t)
	ctx := context.Background()

	alice := saveUser(t, r, "Alice")
	bob := saveUser(t, r, "Bob")
	p := savePost(t, r, alice, "draft")

	p.Title = "final"
	p.Content = "body"
	p.User = bob
	require.NoError(t, r.Posts.Update(ctx, p))

	got, ok, err := r.Posts.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "final", got.Title)
	assert.Equal(t, "body", got.Content)
	assert.Equal(t, bob.ID, got.User.ID)

	alicePosts, err := r.Posts.FindByUserID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, alicePosts)
}

func TestPostRepo_Update_Missing(t *testing.T) {
	r, _ := newRepos(t)
	owner := saveUser(t, r, "Alice")

	err := r.Posts.Update(context.Background(), &models.Post{ID: 31337, Title: "t", Content: "c", User: owner})
	assert.True(t, repo.IsPersistenceError(err))
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestPostRepo_Update_OwnerMissing(t *testing.T) {
	r, _ := newRepos(t)
	ctx := context.Background()

	owner := saveUser(t, r, "Alice")
	p := savePost(t, r, owner, "t")
	p.User = &models.User{ID: 555}

	err := r.Posts.Update(ctx, p)
	assert.ErrorIs(t, err, repo.ErrOwnerNotFound)
}

func TestPostRepo_DeleteAndExists(t *testing.T) {
	r, d := newRepos(t)
	ctx := context.Background()

	owner := saveUser(t, r, "Alice")
	p := savePost(t, r, owner, "t")
	testutil.InsertComment(t, d, "c", owner.ID, p.ID)

	ok, err := r.Posts.ExistsByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, r.Posts.Delete(ctx, p.ID))
	require.NoError(t, r.Posts.Delete(ctx, p.ID))

	ok, err = r.Posts.ExistsByID(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	u, found, err := r.Users.FindByID(ctx, owner.ID)
	require.NoError(t, err)
	require.True(t, found, "deleting a post keeps its owner")
	assert.Empty(t, u.Comments)
}

func TestCommentRepo_Finders(t *testing.T) {
	r, d := newRepos(t)
	ctx := context.Background()

	alice := saveUser(t, r, "Alice")
	bob := saveUser(t, r, "Bob")
	p1 := savePost(t, r, alice, "one")
	p2 := savePost(t, r, bob, "two")

	testutil.InsertComment(t, d, "a1", alice.ID, p1.ID)
	testutil.InsertComment(t, d, "b1", bob.ID, p1.ID)
	testutil.InsertComment(t, d, "a2", alice.ID, p2.ID)

	byAlice, err := r.Comments.FindByUserID(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, byAlice, 2)
	assert.Equal(t, "a1", byAlice[0].Text)
	assert.Equal(t, "a2", byAlice[1].Text)

	onP1, err := r.Comments.FindByPostID(ctx, p1.ID)
	require.NoError(t, err)
	require.Len(t, onP1, 2)
	assert.Equal(t, "a1", onP1[0].Text)
	assert.Equal(t, "b1", onP1[1].Text)

	none, err := r.Comments.FindByPostID(ctx, 999)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
