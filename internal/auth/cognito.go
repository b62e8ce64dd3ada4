package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"gwi.com/chatbot-backend/internal/errs"
)

// CognitoAPI is the subset of the Cognito user pool API used here.
type CognitoAPI interface {
	SignUp(ctx context.Context, in *cip.SignUpInput, optFns ...func(*cip.Options)) (*cip.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, in *cip.ConfirmSignUpInput, optFns ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error)
	InitiateAuth(ctx context.Context, in *cip.InitiateAuthInput, optFns ...func(*cip.Options)) (*cip.InitiateAuthOutput, error)
}

// CognitoClient registers and authenticates users against an app client.
type CognitoClient struct {
	api          CognitoAPI
	clientID     string
	clientSecret string
}

func NewCognitoClient(ctx context.Context, region, clientID, clientSecret string) (*CognitoClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewCognitoClientWithAPI(cip.NewFromConfig(cfg), clientID, clientSecret), nil
}

func NewCognitoClientWithAPI(api CognitoAPI, clientID, clientSecret string) *CognitoClient {
	return &CognitoClient{api: api, clientID: clientID, clientSecret: clientSecret}
}

// SecretHash is base64(HMAC-SHA256(username + clientID)) keyed with the
// app client secret.
func SecretHash(username, clientID, clientSecret string) string {
	mac := hmac.New(sha256.New, []byte(clientSecret))
	mac.Write([]byte(username + clientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *CognitoClient) secretHash(username string) *string {
	if c.clientSecret == "" {
		return nil
	}
	return aws.String(SecretHash(username, c.clientID, c.clientSecret))
}

type SignUpParams struct {
	Username   string
	Password   string
	Email      string
	GivenName  string
	FamilyName string
}

// SignUp registers a user and returns its Cognito sub.
func (c *CognitoClient) SignUp(ctx context.Context, p SignUpParams) (string, error) {
	var attrs []types.AttributeType
	for _, attr := range [][2]string{
		{"email", p.Email},
		{"given_name", p.GivenName},
		{"family_name", p.FamilyName},
	} {
		if attr[1] != "" {
			attrs = append(attrs, types.AttributeType{Name: aws.String(attr[0]), Value: aws.String(attr[1])})
		}
	}

	out, err := c.api.SignUp(ctx, &cip.SignUpInput{
		ClientId:       aws.String(c.clientID),
		Username:       aws.String(p.Username),
		Password:       aws.String(p.Password),
		SecretHash:     c.secretHash(p.Username),
		UserAttributes: attrs,
	})
	if err != nil {
		return "", errs.Wrap(errs.ErrUpstream, err, "cognito sign up failed")
	}
	return aws.ToString(out.UserSub), nil
}

func (c *CognitoClient) ConfirmSignUp(ctx context.Context, username, code string) error {
	_, err := c.api.ConfirmSignUp(ctx, &cip.ConfirmSignUpInput{
		ClientId:         aws.String(c.clientID),
		Username:         aws.String(username),
		ConfirmationCode: aws.String(code),
		SecretHash:       c.secretHash(username),
	})
	if err != nil {
		return errs.Wrap(errs.ErrUpstream, err, "cognito confirm sign up failed")
	}
	return nil
}

type Tokens struct {
	AccessToken string
	IDToken     string
	ExpiresIn   int32 // seconds
}

// Login runs the USER_PASSWORD_AUTH flow.
func (c *CognitoClient) Login(ctx context.Context, username, password string) (*Tokens, error) {
	params := map[string]string{
		"USERNAME": username,
		"PASSWORD": password,
	}
	if hash := c.secretHash(username); hash != nil {
		params["SECRET_HASH"] = *hash
	}

	out, err := c.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       types.AuthFlowTypeUserPasswordAuth,
		ClientId:       aws.String(c.clientID),
		AuthParameters: params,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrUnauthorized, err, "cognito login failed")
	}
	if out.AuthenticationResult == nil {
		return nil, errs.Newf(errs.ErrUnauthorized, "cognito login requires challenge %s", out.ChallengeName)
	}

	res := out.AuthenticationResult
	return &Tokens{
		AccessToken: aws.ToString(res.AccessToken),
		IDToken:     aws.ToString(res.IdToken),
		ExpiresIn:   res.ExpiresIn,
	}, nil
}
