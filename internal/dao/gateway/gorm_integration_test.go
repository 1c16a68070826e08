//go:build integration
// +build integration

package gateway

import (
	"os"
	"testing"

	"roomchat_server/internal/dao/mysql"
)

// 需要一个可写的 MySQL：TEST_MYSQL_DSN="user:pw@tcp(127.0.0.1:3306)/roomchat_test?charset=utf8mb4&parseTime=True&loc=Local"
func TestGormGatewayContract(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set")
	}
	repos, err := mysql.Open(dsn)
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	runContract(t, NewGormGateway(repos))
}
