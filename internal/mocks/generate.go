package mocks

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name SessionRepository --dir ../domain/onboarding --output domain/onboarding --outpkg onboardingmock --filename session_repository_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name OutboxRepository --dir ../domain/onboarding --output domain/onboarding --outpkg onboardingmock --filename outbox_repository_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name ProfileRepository --dir ../domain/onboarding --output domain/onboarding --outpkg onboardingmock --filename profile_repository_mock.go
