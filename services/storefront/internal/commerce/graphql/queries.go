package graphql

const moneyFields = `amount currencyCode`

const cartFragment = `
fragment CartFields on Cart {
  id
  checkoutUrl
  totalQuantity
  cost {
    subtotalAmount { ` + moneyFields + ` }
    totalAmount { ` + moneyFields + ` }
    totalTaxAmount { ` + moneyFields + ` }
  }
  discountCodes { code applicable }
  appliedGiftCards {
    id
    lastCharacters
    amountUsed { ` + moneyFields + ` }
  }
  lines(first: 100) {
    edges {
      node {
        id
        quantity
        cost {
          amountPerQuantity { ` + moneyFields + ` }
          totalAmount { ` + moneyFields + ` }
          compareAtAmountPerQuantity { ` + moneyFields + ` }
        }
        merchandise {
          ... on ProductVariant {
            id
            title
            quantityAvailable
            selectedOptions { name value }
            image { url }
            product { title handle }
          }
        }
      }
    }
  }
}
`

const userErrorFields = `userErrors { field code message }`

const getCartQuery = `
query getCart($cartId: ID!) {
  cart(id: $cartId) { ...CartFields }
}
` + cartFragment

const createCartMutation = `
mutation createCart {
  cartCreate(input: {}) {
    cart { ...CartFields }
    ` + userErrorFields + `
  }
}
` + cartFragment

const addLinesMutation = `
mutation addCartLines($cartId: ID!, $lines: [CartLineInput!]!) {
  cartLinesAdd(cartId: $cartId, lines: $lines) {
    cart { ...CartFields }
    ` + userErrorFields + `
  }
}
` + cartFragment

const updateLinesMutation = `
mutation updateCartLines($cartId: ID!, $lines: [CartLineUpdateInput!]!) {
  cartLinesUpdate(cartId: $cartId, lines: $lines) {
    cart { ...CartFields }
    ` + userErrorFields + `
  }
}
` + cartFragment

const removeLinesMutation = `
mutation removeCartLines($cartId: ID!, $lineIds: [ID!]!) {
  cartLinesRemove(cartId: $cartId, lineIds: $lineIds) {
    cart { ...CartFields }
    ` + userErrorFields + `
  }
}
` + cartFragment

const updateDiscountCodesMutation = `
mutation updateCartDiscountCodes($cartId: ID!, $discountCodes: [String!]) {
  cartDiscountCodesUpdate(cartId: $cartId, discountCodes: $discountCodes) {
    cart { ...CartFields }
    ` + userErrorFields + `
  }
}
` + cartFragment

const updateGiftCardCodesMutation = `
mutation updateCartGiftCardCodes($cartId: ID!, $giftCardCodes: [String!]!) {
  cartGiftCardCodesUpdate(cartId: $cartId, giftCardCodes: $giftCardCodes) {
    cart { ...CartFields }
    ` + userErrorFields + `
  }
}
` + cartFragment

const shopQuery = `query ping { shop { name } }`
