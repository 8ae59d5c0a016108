package api

import (
	"net/http"
	"strconv"
	"strings"

	"sinilikhain/internal/models"
	"sinilikhain/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// productBody is the JSON form of a product edit.
type productBody struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Quantity    *int             `json:"quantity"`
	Category    *string          `json:"category"`
	Image       *string          `json:"image"`
}

func (b productBody) input() service.ProductInput {
	return service.ProductInput{
		Name:        b.Name,
		Description: b.Description,
		Price:       b.Price,
		Quantity:    b.Quantity,
		Category:    b.Category,
		Image:       b.Image,
	}
}

// productInput reads a product from a multipart form (with an optional image
// file) or from a JSON body.
func (h *Handler) productInput(c *gin.Context) (service.ProductInput, bool) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var body productBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "Invalid request body", err)
			return service.ProductInput{}, false
		}
		return body.input(), true
	}

	var in service.ProductInput
	text := func(field string) *string {
		if v, ok := c.GetPostForm(field); ok {
			return &v
		}
		return nil
	}
	in.Name = text("name")
	in.Description = text("description")
	in.Category = text("category")
	in.Image = text("image")

	if v := text("price"); v != nil {
		price, err := decimal.NewFromString(strings.TrimSpace(*v))
		if err != nil {
			badRequest(c, "Invalid price", err)
			return in, false
		}
		in.Price = &price
	}
	if v := text("quantity"); v != nil {
		qty, err := strconv.Atoi(strings.TrimSpace(*v))
		if err != nil {
			badRequest(c, "Invalid quantity", err)
			return in, false
		}
		in.Quantity = &qty
	}

	file, err := c.FormFile("image")
	if err == nil {
		f, err := file.Open()
		if err != nil {
			badRequest(c, "Invalid image upload", err)
			return in, false
		}
		defer f.Close()

		path, err := h.images.Save(c.Request.Context(), file.Filename, file.Header.Get("Content-Type"), f)
		if err != nil {
			respondError(c, err)
			return in, false
		}
		in.Image = &path
	}
	return in, true
}

// listProducts handles GET /products?approved=&artisan=&category=&search=
func (h *Handler) listProducts(c *gin.Context) {
	var filter models.ProductFilter
	if v := c.Query("approved"); v != "" {
		approved, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "Invalid approved filter", err)
			return
		}
		filter.Approved = &approved
	}
	if v := c.Query("artisan"); v != "" {
		artisanID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			badRequest(c, "Invalid artisan filter", err)
			return
		}
		filter.ArtisanID = artisanID
	}
	filter.Category = c.Query("category")
	filter.Search = c.Query("search")

	products, err := h.products.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	product, err := h.products.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) createProduct(c *gin.Context) {
	in, ok := h.productInput(c)
	if !ok {
		return
	}
	product, err := h.products.Create(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	// ownership first so a rejected edit leaves no stored image behind
	if _, err := h.products.Editable(c.Request.Context(), actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	in, ok := h.productInput(c)
	if !ok {
		return
	}
	product, err := h.products.Update(c.Request.Context(), actorFrom(c), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.products.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}

func (h *Handler) approveProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	product, err := h.products.Approve(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) rejectProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	product, err := h.products.Reject(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

type buyRequest struct {
	Items []models.CartLine `json:"items" binding:"required,min=1,dive"`
}

// buyProducts handles the cart-decrement purchase (no order record)
func (h *Handler) buyProducts(c *gin.Context) {
	var req buyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	result, err := h.products.Buy(c.Request.Context(), req.Items)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type rateRequest struct {
	Rating int `json:"rating" binding:"required"`
}

func (h *Handler) rateProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	summary, err := h.products.Rate(c.Request.Context(), actorFrom(c), id, req.Rating)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
