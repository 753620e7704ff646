package service

import (
	"context"
	"fmt"
	"time"

	"wet-coach-go/internal/model"
	"wet-coach-go/internal/repository"
)

// UserListResponse 定义了用户列表 API 的响应结构。
type UserListResponse struct {
	Content       []UserDetailResponse `json:"content"`
	TotalElements int64                `json:"totalElements"`
	TotalPages    int                  `json:"totalPages"`
	Size          int                  `json:"size"`
	Number        int                  `json:"number"`
}

// UserDetailResponse 定义了用户列表项的详细结构。
type UserDetailResponse struct {
	UserID    uint            `json:"userId"`
	Username  string          `json:"username"`
	Role      string          `json:"role"`
	CreatedAt model.LocalTime `json:"createdAt"`
}

// ConversationSummary 是督导查看的会话概览。
type ConversationSummary struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	UserID     uint            `json:"userId"`
	Username   string          `json:"username"`
	PersonaKey string          `json:"personaKey"`
	Visibility string          `json:"visibility"`
	NoteCount  int             `json:"noteCount"`
	CreatedAt  model.LocalTime `json:"createdAt"`
}

// AdminService 接口定义了督导（SUPERVISOR）相关的业务操作。
type AdminService interface {
	ListUsers(page, size int) (*UserListResponse, error)
	ListConversations(ctx context.Context, userID *uint, startTime, endTime *time.Time) ([]ConversationSummary, error)
}

type adminService struct {
	userRepo         repository.UserRepository
	conversationRepo repository.ConversationRepository
	noteRepo         repository.NoteRepository
}

// NewAdminService 创建一个新的 AdminService 实例。
func NewAdminService(userRepo repository.UserRepository, conversationRepo repository.ConversationRepository, noteRepo repository.NoteRepository) AdminService {
	return &adminService{
		userRepo:         userRepo,
		conversationRepo: conversationRepo,
		noteRepo:         noteRepo,
	}
}

// ListUsers 以分页的形式返回用户列表
func (s *adminService) ListUsers(page, size int) (*UserListResponse, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	offset := (page - 1) * size
	users, total, err := s.userRepo.FindWithPagination(offset, size)
	if err != nil {
		return nil, err
	}

	userResponses := make([]UserDetailResponse, 0, len(users))
	for _, u := range users {
		userResponses = append(userResponses, UserDetailResponse{
			UserID:    u.ID,
			Username:  u.Username,
			Role:      u.Role,
			CreatedAt: model.LocalTime(u.CreatedAt),
		})
	}

	totalPages := 0
	if total > 0 {
		totalPages = (int(total) + size - 1) / size
	}
	return &UserListResponse{
		Content:       userResponses,
		TotalElements: total,
		TotalPages:    totalPages,
		Size:          size,
		Number:        page,
	}, nil
}

// ListConversations 按用户与创建时间过滤所有会话，最新在前。
func (s *adminService) ListConversations(ctx context.Context, userID *uint, startTime, endTime *time.Time) ([]ConversationSummary, error) {
	convs, err := s.conversationRepo.List(ctx, repository.ConversationFilter{
		UserID:    userID,
		StartTime: startTime,
		EndTime:   endTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	usernames := make(map[uint]string)
	summaries := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		name, ok := usernames[c.UserID]
		if !ok {
			// 忽略已删除的用户
			if u, err := s.userRepo.FindByID(c.UserID); err == nil {
				name = u.Username
			}
			usernames[c.UserID] = name
		}
		notes, err := s.noteRepo.ListByConversation(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, ConversationSummary{
			ID:         c.ID,
			Title:      c.Title,
			UserID:     c.UserID,
			Username:   name,
			PersonaKey: c.PersonaKey,
			Visibility: c.Visibility,
			NoteCount:  len(notes),
			CreatedAt:  model.LocalTime(c.CreatedAt),
		})
	}
	return summaries, nil
}
