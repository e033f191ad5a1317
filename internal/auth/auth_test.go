package auth_test

import (
	"context"
	"errors"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"homesense.dev/backend/internal/auth"
	"homesense.dev/backend/internal/store"
	"homesense.dev/backend/internal/store/storetest"
)

var _ = Describe("Service", func() {
	var (
		logger  *slog.Logger
		db      *gorm.DB
		service *auth.Service
		ctx     context.Context
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))

		var err error
		db, err = storetest.Open()
		Expect(err).NotTo(HaveOccurred())

		service, err = auth.NewService(logger, db, "test-secret")
		Expect(err).NotTo(HaveOccurred())

		ctx = context.Background()
	})

	Describe("NewService", func() {
		It("should return error when the secret is empty", func() {
			s, err := auth.NewService(logger, db, "")
			Expect(err).To(HaveOccurred())
			Expect(s).To(BeNil())
		})
	})

	Describe("HashPassword and CheckPassword", func() {
		It("should verify the original password and nothing else", func() {
			hash, err := auth.HashPassword("hunter2")
			Expect(err).NotTo(HaveOccurred())
			Expect(hash).NotTo(Equal("hunter2"))

			Expect(auth.CheckPassword(hash, "hunter2")).To(BeTrue())
			Expect(auth.CheckPassword(hash, "hunter3")).To(BeFalse())
		})

		It("should reject an empty password", func() {
			_, err := auth.HashPassword("")
			Expect(errors.Is(err, store.ErrInvalidInput)).To(BeTrue())
		})
	})

	Describe("Register", func() {
		It("should create a user with a hashed credential", func() {
			user, err := service.Register(ctx, auth.RegisterParams{
				Name:     "Ada",
				Email:    "ada@example.com",
				Password: "hunter2",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(user.ID).NotTo(BeZero())
			Expect(user.PasswordHash).NotTo(Equal("hunter2"))
		})

		It("should reject an invalid email", func() {
			_, err := service.Register(ctx, auth.RegisterParams{Email: "not-an-email", Password: "x"})
			Expect(errors.Is(err, store.ErrInvalidInput)).To(BeTrue())
		})

		It("should conflict on a taken email", func() {
			_, err := service.Register(ctx, auth.RegisterParams{Email: "ada@example.com", Password: "x"})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Register(ctx, auth.RegisterParams{Email: "ada@example.com", Password: "y"})
			Expect(errors.Is(err, store.ErrConflict)).To(BeTrue())
		})
	})

	Describe("Login", func() {
		BeforeEach(func() {
			_, err := service.Register(ctx, auth.RegisterParams{
				Email:    "ada@example.com",
				Password: "hunter2",
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return a token for valid credentials", func() {
			token, user, err := service.Login(ctx, "ada@example.com", "hunter2")
			Expect(err).NotTo(HaveOccurred())
			Expect(token).NotTo(BeEmpty())
			Expect(user.Email).To(Equal("ada@example.com"))
		})

		It("should fail uniformly for an unknown email", func() {
			_, _, err := service.Login(ctx, "nobody@example.com", "hunter2")
			Expect(errors.Is(err, auth.ErrInvalidCredentials)).To(BeTrue())
		})

		It("should fail uniformly for a wrong password", func() {
			_, _, err := service.Login(ctx, "ada@example.com", "wrong")
			Expect(errors.Is(err, auth.ErrInvalidCredentials)).To(BeTrue())
		})
	})

	Describe("Tokens", func() {
		It("should round-trip the user id", func() {
			token, err := service.GenerateToken(42)
			Expect(err).NotTo(HaveOccurred())

			userID, err := service.ParseToken(token)
			Expect(err).NotTo(HaveOccurred())
			Expect(userID).To(Equal(uint(42)))
		})

		It("should reject garbage", func() {
			_, err := service.ParseToken("not.a.token")
			Expect(errors.Is(err, auth.ErrInvalidCredentials)).To(BeTrue())
		})

		It("should reject a token signed with a different secret", func() {
			other, err := auth.NewService(logger, db, "other-secret")
			Expect(err).NotTo(HaveOccurred())

			token, err := other.GenerateToken(42)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.ParseToken(token)
			Expect(errors.Is(err, auth.ErrInvalidCredentials)).To(BeTrue())
		})
	})

	Describe("ResolveBearer", func() {
		It("should resolve a valid bearer header to its user", func() {
			user, err := service.Register(ctx, auth.RegisterParams{
				Email:    "ada@example.com",
				Password: "hunter2",
			})
			Expect(err).NotTo(HaveOccurred())

			token, err := service.GenerateToken(user.ID)
			Expect(err).NotTo(HaveOccurred())

			resolved, err := service.ResolveBearer(ctx, "Bearer "+token)
			Expect(err).NotTo(HaveOccurred())
			Expect(resolved.ID).To(Equal(user.ID))
		})

		It("should reject a header without the Bearer prefix", func() {
			_, err := service.ResolveBearer(ctx, "Basic abc")
			Expect(errors.Is(err, auth.ErrInvalidCredentials)).To(BeTrue())
		})

		It("should reject a token for a deleted user", func() {
			token, err := service.GenerateToken(12345)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.ResolveBearer(ctx, "Bearer "+token)
			Expect(errors.Is(err, auth.ErrInvalidCredentials)).To(BeTrue())
		})
	})
})
